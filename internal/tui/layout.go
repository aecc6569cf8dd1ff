package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/DeuxFois/papervault/internal/discussions"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	listWidth      int
	chatWidth      int
	listHeight     int
	viewportHeight int
	composerWidth  int
}

func newPageLayout() pageLayout {
	l := pageLayout{}
	l.Update(100, 30)
	return l
}

// Update splits the window into the note list and the discussion pane. The
// list takes a quarter of the width within fixed bounds.
func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height

	l.listWidth = width / 4
	if l.listWidth < minListWidth {
		l.listWidth = minListWidth
	}
	if l.listWidth > maxListWidth {
		l.listWidth = maxListWidth
	}
	l.chatWidth = width - l.listWidth - paneGap
	if l.chatWidth < minChatWidth {
		l.chatWidth = minChatWidth
	}
	l.composerWidth = l.chatWidth - 4

	// header, pane title, composer, status and help line
	const chrome = 7
	usable := height - chrome
	if usable < 5 {
		usable = 5
	}
	l.viewportHeight = usable
	l.listHeight = usable
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

// renderDiscussion lays out the live discussion for the viewport. spinner is
// drawn in place of the typing placeholder.
func renderDiscussion(d discussions.Discussion, history []discussions.Message, width int, spinner string) string {
	cb := &contentBuilder{}
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	if len(history) == 0 {
		cb.WriteString(helperStyle.Render("No messages yet. Type a question below and press Enter."))
		cb.WriteRune('\n')
		return cb.String()
	}
	for idx, msg := range history {
		label := roleLabel(msg.Role)
		stamp := ""
		if !msg.Timestamp.IsZero() {
			stamp = msg.Timestamp.Local().Format("15:04")
		}
		cb.WriteString(roleStyle(msg.Role).Render(label))
		if stamp != "" {
			cb.WriteString(" " + helperStyle.Render(stamp))
		}
		cb.WriteRune('\n')
		if msg.IsPlaceholder() {
			cb.WriteString("  " + spinner + " " + helperStyle.Render(discussions.ThinkingPlaceholder))
		} else {
			body := wordwrap.String(strings.TrimSpace(msg.Content), wrap)
			if strings.HasPrefix(msg.Content, "Error: ") {
				body = errorStyle.Render(body)
			}
			cb.WriteString(indentMultiline(body, "  "))
		}
		cb.WriteRune('\n')
		if idx < len(history)-1 {
			cb.WriteRune('\n')
		}
	}
	return cb.String()
}

func roleLabel(role discussions.Role) string {
	switch role {
	case discussions.RoleUser:
		return "You"
	case discussions.RoleSystem:
		return "System"
	default:
		return "Assistant"
	}
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// visibleWindow returns the slice bounds that keep cursor on screen.
func visibleWindow(total, cursor, height int) (int, int) {
	if height <= 0 || total <= height {
		return 0, total
	}
	start := cursor - height/2
	if start < 0 {
		start = 0
	}
	if start+height > total {
		start = total - height
	}
	return start, start + height
}

func toggleLabel(name string, on bool) string {
	state := "off"
	if on {
		state = "on"
	}
	return fmt.Sprintf("%s:%s", name, state)
}
