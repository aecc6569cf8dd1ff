package discussions

import (
	"strings"

	"github.com/DeuxFois/papervault/internal/llm"
)

// Character budgets for context composition.
const (
	NoteBudget          = 20000
	PDFBudget           = 40000
	IncludedNoteBudget  = 15000
	DefaultHistoryTurns = 10
)

// DefaultSystemPrompt is used when the settings carry none.
const DefaultSystemPrompt = "You are a research assistant. Answer questions about the user's notes and papers using the provided context. Say so when the context does not contain the answer."

// ContextInput is everything context composition reads.
type ContextInput struct {
	NoteName      string
	NoteContent   string
	PDFName       string
	PDFText       string
	IncludeNote   bool
	IncludePDF    bool
	IncludedNotes []IncludedNote
}

// InputFor copies the toggles and attachments of d into a ContextInput.
func InputFor(d Discussion, noteContent, pdfName, pdfText string) ContextInput {
	return ContextInput{
		NoteName:      d.NoteName,
		NoteContent:   noteContent,
		PDFName:       pdfName,
		PDFText:       pdfText,
		IncludeNote:   d.IncludeNoteInContext,
		IncludePDF:    d.IncludePDFInContext,
		IncludedNotes: append([]IncludedNote(nil), d.IncludedNotes...),
	}
}

// ComposeContext builds the context text sent ahead of the conversation. The
// result depends only on in.
func ComposeContext(in ContextInput) string {
	var b strings.Builder
	section := func(heading, body string, budget int) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## " + heading + "\n\n")
		b.WriteString(llm.ClipText(body, budget))
	}

	if in.IncludeNote {
		section("Current note: "+in.NoteName, in.NoteContent, NoteBudget)
	}
	if in.IncludePDF {
		name := in.PDFName
		if name == "" {
			name = in.NoteName
		}
		section("PDF: "+name, in.PDFText, PDFBudget)
	}
	for _, note := range in.IncludedNotes {
		if !note.IncludeInContext {
			continue
		}
		name := note.Name
		if name == "" {
			name = note.Path
		}
		section("Included note: "+name, note.Content, IncludedNoteBudget)
	}
	return b.String()
}

// BuildMessages assembles the LLM request: system prompt with the composed
// context, the last turns non-system messages of history, then prompt.
// Placeholders are skipped. A prompt equal to the last user message in
// history is not repeated.
func BuildMessages(systemPrompt, contextText string, history []Message, turns int, prompt string) []llm.Message {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if turns <= 0 {
		turns = DefaultHistoryTurns
	}
	system := systemPrompt
	if contextText != "" {
		system += "\n\n# Context\n\n" + contextText
	}
	out := []llm.Message{{Role: llm.RoleSystem, Content: system}}

	var tail []Message
	for _, m := range history {
		if m.Role == RoleSystem || m.IsPlaceholder() {
			continue
		}
		tail = append(tail, m)
	}
	if n := len(tail); n > 0 && tail[n-1].Role == RoleUser && tail[n-1].Content == prompt {
		tail = tail[:n-1]
	}
	if len(tail) > turns {
		tail = tail[len(tail)-turns:]
	}
	for _, m := range tail {
		role := llm.RoleAssistant
		if m.Role == RoleUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	if strings.TrimSpace(prompt) != "" {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: prompt})
	}
	return out
}
