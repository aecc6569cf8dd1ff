package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/DeuxFois/papervault/internal/discussions"
)

func (m *model) View() string {
	m.refreshViewportIfDirty()
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("papervault"),
		" ",
		taglineStyle.Render(heroTagline),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		m.notesPane(),
		strings.Repeat(" ", paneGap),
		m.chatPane(),
	)
	parts := []string{header, panes, m.statusView()}
	if m.helpVisible {
		parts = append(parts, m.helpView())
	}
	return strings.Join(parts, "\n")
}

func (m *model) notesPane() string {
	width := m.layout.listWidth
	heading := "Notes"
	if m.focus == focusNotes {
		heading = "▸ Notes"
	}
	lines := []string{sectionHeaderStyle.Render(heading)}
	if len(m.notes) == 0 {
		lines = append(lines, helperStyle.Render("No notes in the vault."))
	}
	active := m.config.Panel.NotePath()
	start, end := visibleWindow(len(m.notes), m.cursor, m.layout.listHeight)
	for i := start; i < end; i++ {
		n := m.notes[i]
		label := trimmedLabel(n.Label, width-4)
		marker := "  "
		if n.Path == active {
			marker = "● "
		}
		style := noteStyle
		if n.Managed {
			style = paperStyle
		}
		line := marker + style.Render(label)
		if i == m.cursor && m.focus == focusNotes {
			line = currentLineStyle.Render(marker + label)
		}
		lines = append(lines, line)
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

func (m *model) chatPane() string {
	title := "No discussion"
	var toggles string
	if current, ok := m.store().Current(); ok {
		title = trimmedLabel(current.Title, m.layout.chatWidth-24)
		if title == "" {
			title = discussions.DeriveTitle(current.History, current.StartTime)
		}
		toggles = helperStyle.Render(fmt.Sprintf("[%s %s %d notes]",
			toggleLabel("pdf", current.IncludePDFInContext),
			toggleLabel("note", current.IncludeNoteInContext),
			len(current.IncludedNotes),
		))
	}
	if m.store().Dirty() {
		title += " *"
	}
	heading := lipgloss.JoinHorizontal(lipgloss.Top, sectionHeaderStyle.Render(title), " ", toggles)
	composer := m.composer.View()
	if m.focus == focusComposer {
		composer = composerFocusedStyle.Render(composer)
	} else {
		composer = composerStyle.Render(composer)
	}
	return lipgloss.NewStyle().Width(m.layout.chatWidth).Render(
		strings.Join([]string{heading, m.viewport.View(), composer}, "\n"),
	)
}

func (m *model) statusView() string {
	var parts []string
	if m.busy() {
		parts = append(parts, m.spinner.View()+" "+m.jobLabel())
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	} else if m.infoMessage != "" {
		parts = append(parts, m.infoMessage)
	}
	if m.config.Papers != nil {
		parts = append(parts, fmt.Sprintf("%d papers", m.config.Papers.Len()))
	}
	parts = append(parts, "? help")
	return statusBarStyle.Render(strings.Join(parts, "  •  "))
}

func (m *model) jobLabel() string {
	switch {
	case m.running[jobKindReply] > 0:
		return "thinking"
	case m.running[jobKindRebuild] > 0:
		return "indexing"
	case m.running[jobKindSwitch] > 0:
		return "opening"
	default:
		return "saving"
	}
}

type keyHint struct {
	Key         string
	Description string
}

var keyHints = []keyHint{
	{"Tab", "Switch focus"},
	{"Enter", "Open note / send"},
	{"↑/↓", "Move / recall input"},
	{"Ctrl+N", "New discussion"},
	{"Ctrl+S", "Save"},
	{"Ctrl+D", "Delete discussion"},
	{"Ctrl+X", "Delete last message"},
	{"Ctrl+Z", "Undo delete"},
	{"Ctrl+P", "Toggle PDF context"},
	{"Ctrl+O", "Toggle note context"},
	{"Ctrl+R", "Rebuild index"},
	{"Ctrl+C", "Save and quit"},
}

func (m *model) helpView() string {
	rows := []string{sectionHeaderStyle.Render("Keys")}
	const columns = 3
	for i := 0; i < len(keyHints); i += columns {
		end := i + columns
		if end > len(keyHints) {
			end = len(keyHints)
		}
		var cells []string
		for _, hint := range keyHints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Width(22).Render(" " + hint.Description)
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func roleStyle(role discussions.Role) lipgloss.Style {
	switch role {
	case discussions.RoleUser:
		return userLabelStyle
	case discussions.RoleSystem:
		return systemLabelStyle
	default:
		return assistantLabelStyle
	}
}

var (
	accentColor    = lipgloss.Color("#ff8c00")
	secondaryColor = lipgloss.Color("#ffb347")

	titleStyle           = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	taglineStyle         = lipgloss.NewStyle().Foreground(secondaryColor).Italic(true)
	sectionHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	paperStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	noteStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userLabelStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	assistantLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	systemLabelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	statusBarStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle             = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	currentLineStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	composerStyle        = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#56526e"))
	composerFocusedStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(accentColor)
)
