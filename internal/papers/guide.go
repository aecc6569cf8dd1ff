package papers

import (
	"fmt"
	"strings"
)

// GuideStep is one item of the reading plan added to imported notes.
type GuideStep struct {
	Title       string
	Description string
}

// ReadingGuide returns a three-pass reading plan for a paper, ending with
// the steps that turn it into linked notes.
func ReadingGuide(title string, authors []string) []GuideStep {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "the paper"
	}
	by := ""
	if len(authors) > 0 {
		by = " by " + strings.Join(authors, ", ")
	}
	return []GuideStep{
		{
			Title:       "Pass 1: Quick skim",
			Description: fmt.Sprintf("Spend five minutes on %s%s: domain, venue, section structure, key figures and unfamiliar terms.", title, by),
		},
		{
			Title:       "Pass 2: Grasp the content",
			Description: "Redraw the main figure and restate the problem, the method and the evaluation setup in your own words. Flag assumptions.",
		},
		{
			Title:       "Pass 3: Deep audit",
			Description: "Follow the derivations, reproduce the pseudo-code and check whether the conclusions follow. Note limitations and extension ideas.",
		},
		{
			Title:       "Capture",
			Description: "Split the insights into atomic notes linked from this one: problem, approach, key results, open questions.",
		},
		{
			Title:       "Ask the paper",
			Description: "Open the chat on this note with the PDF in context and ask what you could not answer yourself.",
		},
	}
}

// renderGuide writes steps as a markdown task list.
func renderGuide(b *strings.Builder, steps []GuideStep) {
	b.WriteString("\n## Reading plan\n\n")
	for _, step := range steps {
		fmt.Fprintf(b, "- [ ] **%s**: %s\n", step.Title, step.Description)
	}
}
