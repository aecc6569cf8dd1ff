package discussions

import (
	"fmt"
	"strings"
)

var roleLabels = map[Role]string{
	RoleUser:      "You",
	RoleAssistant: "Assistant",
	RoleSystem:    "System",
}

// ExportMarkdown renders d as a standalone note.
func ExportMarkdown(d Discussion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	if d.NoteName != "" {
		fmt.Fprintf(&b, "- Note: [[%s]]\n", d.NoteName)
	}
	fmt.Fprintf(&b, "- Started: %s\n", d.StartTime.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Messages: %d\n", len(normalizeHistory(d.History, d.StartTime)))

	for _, m := range d.History {
		if m.IsPlaceholder() {
			continue
		}
		label := roleLabels[m.Role]
		if label == "" {
			label = string(m.Role)
		}
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n", label, m.Timestamp.Local().Format("15:04"), strings.TrimSpace(m.Content))
	}
	return b.String()
}
