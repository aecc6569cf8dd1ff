// Package tui is the terminal chat panel: a note list on the left and the
// active note's discussion on the right.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/chat"
	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/vault"
)

// Config wires runtime dependencies into the TUI program.
type Config struct {
	Panel *chat.Panel
	Vault *vault.Vault
	// Papers may be nil; the list then shows plain notes only.
	Papers *papers.Synchronizer
	// Events delivers EventMsg, RebuildMsg, StoreChangedMsg and NoticeMsg
	// produced outside the program.
	Events      <-chan tea.Msg
	InitialNote string
	Logger      *log.Logger
	Context     context.Context
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Context == nil {
		config.Context = context.Background()
	}
	logger := logging.OrDiscard(config.Logger).With("component", "tui")

	composer := textinput.New()
	composer.Placeholder = "Ask about this note…"
	composer.CharLimit = composerCharLimit
	composer.Prompt = "› "

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	m := &model{
		config:        config,
		logger:        logger,
		jobs:          newJobBus(config.Context, logger),
		layout:        newPageLayout(),
		focus:         focusNotes,
		composer:      composer,
		spinner:       spin,
		viewport:      vp,
		running:       map[jobKind]int{},
		viewportDirty: true,
		infoMessage:   "Pick a note and press Enter to open its discussion.",
	}
	m.applyLayout()
	m.refreshNotes()
	if config.InitialNote != "" {
		m.selectPath(vault.Clean(config.InitialNote))
	}
	return m
}

type model struct {
	config Config
	logger *log.Logger
	jobs   *jobBus
	layout pageLayout
	focus  focusArea

	notes  []noteEntry
	cursor int

	composer textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	running       map[jobKind]int
	ticking       bool
	confirming    bool
	pendingDelete discussions.Discussion
	helpVisible   bool
	quitting      bool
	viewportDirty bool
	infoMessage   string
	errorMessage  string
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, listen(m.config.Events)}
	if m.config.InitialNote != "" {
		cmds = append(cmds, m.openNote(vault.Clean(m.config.InitialNote)))
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.applyLayout()
		return m, nil
	case spinner.TickMsg:
		if !m.busy() {
			m.ticking = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.markViewportDirty()
		return m, cmd
	case jobSignalMsg:
		m.running[msg.Snapshot.Kind]++
		return m, m.startSpinner()
	case jobResultEnvelope:
		if m.running[msg.Snapshot.Kind] > 0 {
			m.running[msg.Snapshot.Kind]--
		}
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)

	case switchResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("open %s: %v", msg.notePath, msg.err)
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = "Opened " + msg.notePath
		m.setFocus(focusComposer)
		m.markViewportDirty()
		return m, nil
	case replyResultMsg:
		switch {
		case msg.err != nil:
			m.errorMessage = msg.err.Error()
		case msg.reply.Err != nil:
			m.infoMessage = "Request canceled."
		case msg.reply.Request.NotePath != m.config.Panel.NotePath():
			m.infoMessage = "Reply saved to the discussion on " + msg.reply.Request.NotePath
		default:
			m.errorMessage = ""
			m.infoMessage = "Reply received."
		}
		m.markViewportDirty()
		return m, nil
	case saveResultMsg:
		if msg.err != nil {
			m.errorMessage = "save failed: " + msg.err.Error()
		} else {
			m.infoMessage = "Discussions saved."
		}
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	case deleteResultMsg:
		if msg.err != nil {
			m.errorMessage = "delete failed: " + msg.err.Error()
		} else {
			m.infoMessage = fmt.Sprintf("Deleted %q.", msg.title)
		}
		m.markViewportDirty()
		return m, nil
	case newDiscussionMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.infoMessage = "Started a new discussion."
		m.setFocus(focusComposer)
		m.markViewportDirty()
		return m, nil
	case rebuildResultMsg:
		if msg.err != nil {
			m.errorMessage = "rebuild failed: " + msg.err.Error()
		}
		return m, nil

	case EventMsg:
		switch msg.Event.Kind {
		case vault.EventCreate, vault.EventDelete, vault.EventRename:
			m.refreshNotes()
		}
		return m, listen(m.config.Events)
	case RebuildMsg:
		if msg.Result.Err != nil {
			m.errorMessage = "index rebuild failed: " + msg.Result.Err.Error()
		} else {
			m.infoMessage = fmt.Sprintf("Index rebuilt: %d papers in %d sectors.", msg.Result.Papers, msg.Result.Sectors)
		}
		m.refreshNotes()
		return m, listen(m.config.Events)
	case StoreChangedMsg:
		m.markViewportDirty()
		return m, listen(m.config.Events)
	case NoticeMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
		}
		return m, listen(m.config.Events)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirming {
		return m, m.resolveDelete(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m, m.quit()
	case "tab":
		if m.focus == focusNotes {
			m.setFocus(focusComposer)
		} else {
			m.setFocus(focusNotes)
		}
		return m, nil
	case "ctrl+n":
		if m.config.Panel.NotePath() == "" {
			m.errorMessage = "Open a note first."
			return m, nil
		}
		return m, m.jobs.Start(jobKindCreate, newDiscussionJob(m.config.Panel))
	case "ctrl+s":
		return m, m.jobs.Start(jobKindSave, saveJob(m.store()))
	case "ctrl+d":
		m.askDelete()
		return m, nil
	case "ctrl+x":
		m.deleteLastMessage()
		return m, nil
	case "ctrl+z":
		if m.store().UndoDelete() {
			m.infoMessage = "Message restored."
			m.markViewportDirty()
		} else {
			m.infoMessage = "Nothing to undo."
		}
		return m, nil
	case "ctrl+p":
		m.toggleContext("PDF", func(d discussions.Discussion) bool { return d.IncludePDFInContext }, m.store().SetIncludePDF)
		return m, nil
	case "ctrl+o":
		m.toggleContext("Note", func(d discussions.Discussion) bool { return d.IncludeNoteInContext }, m.store().SetIncludeNote)
		return m, nil
	case "ctrl+r":
		if m.config.Papers == nil {
			m.errorMessage = "No paper index configured."
			return m, nil
		}
		m.infoMessage = "Rebuilding paper index…"
		return m, m.jobs.Start(jobKindRebuild, rebuildJob(m.config.Papers))
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusComposer {
		return m, m.processComposerKey(msg)
	}
	return m, m.processListKey(msg)
}

func (m *model) processListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.notes)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		if len(m.notes) > 0 {
			m.cursor = len(m.notes) - 1
		}
	case "enter":
		if len(m.notes) == 0 {
			return nil
		}
		return m.openNote(m.notes[m.cursor].Path)
	case "?":
		m.helpVisible = !m.helpVisible
	case "q", "esc":
		return m.quit()
	}
	return nil
}

func (m *model) processComposerKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		return m.send()
	case tea.KeyEsc:
		m.setFocus(focusNotes)
		return nil
	case tea.KeyUp:
		if value, ok := m.store().RecallPrevious(); ok {
			m.composer.SetValue(value)
			m.composer.CursorEnd()
		}
		return nil
	case tea.KeyDown:
		if value, ok := m.store().RecallNext(); ok {
			m.composer.SetValue(value)
			m.composer.CursorEnd()
		}
		return nil
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return cmd
}

func (m *model) send() tea.Cmd {
	prompt := strings.TrimSpace(m.composer.Value())
	if prompt == "" {
		return nil
	}
	req, err := m.config.Panel.Send(m.config.Context, prompt)
	if err != nil {
		if errors.Is(err, chat.ErrNoActiveNote) {
			m.errorMessage = "Open a note first."
		} else {
			m.errorMessage = err.Error()
		}
		return nil
	}
	m.composer.SetValue("")
	m.errorMessage = ""
	m.infoMessage = "Waiting for a reply…"
	m.markViewportDirty()
	m.viewport.GotoBottom()
	return m.jobs.Start(jobKindReply, replyJob(m.config.Panel, req))
}

func (m *model) openNote(notePath string) tea.Cmd {
	m.selectPath(notePath)
	m.infoMessage = "Opening " + notePath + "…"
	return m.jobs.Start(jobKindSwitch, switchNoteJob(m.config.Panel, notePath))
}

func (m *model) askDelete() {
	current, ok := m.store().Current()
	if !ok {
		m.errorMessage = "No discussion to delete."
		return
	}
	m.confirming = true
	m.pendingDelete = current
	m.infoMessage = fmt.Sprintf("Delete discussion %q? (y/n)", current.Title)
}

func (m *model) resolveDelete(msg tea.KeyMsg) tea.Cmd {
	m.confirming = false
	target := m.pendingDelete
	m.pendingDelete = discussions.Discussion{}
	switch msg.String() {
	case "y", "Y":
		m.config.Panel.Cancel()
		return m.jobs.Start(jobKindDelete, deleteJob(m.config.Panel, target))
	case "ctrl+c":
		return m.quit()
	default:
		m.infoMessage = "Delete canceled."
		return nil
	}
}

func (m *model) deleteLastMessage() {
	id := lastMessageID(m.store().Messages())
	if id == "" {
		m.infoMessage = "No message to delete."
		return
	}
	if err := m.store().DeleteMessage(id); err != nil {
		m.errorMessage = err.Error()
		return
	}
	m.infoMessage = "Message deleted. Ctrl+Z to undo."
	m.markViewportDirty()
}

func (m *model) toggleContext(name string, get func(discussions.Discussion) bool, set func(bool) error) {
	current, ok := m.store().Current()
	if !ok {
		m.errorMessage = "Open a note first."
		return
	}
	on := !get(current)
	if err := set(on); err != nil {
		m.errorMessage = err.Error()
		return
	}
	m.infoMessage = fmt.Sprintf("%s context %s.", name, onOff(on))
}

func (m *model) quit() tea.Cmd {
	if m.quitting {
		return tea.Quit
	}
	m.quitting = true
	m.config.Panel.Cancel()
	m.infoMessage = "Saving discussions…"
	return m.jobs.Start(jobKindSave, saveJob(m.store()))
}

func (m *model) setFocus(f focusArea) {
	m.focus = f
	if f == focusComposer {
		m.composer.Focus()
	} else {
		m.composer.Blur()
	}
}

func (m *model) startSpinner() tea.Cmd {
	if m.ticking || !m.busy() {
		return nil
	}
	m.ticking = true
	return m.spinner.Tick
}

func (m *model) busy() bool {
	for _, n := range m.running {
		if n > 0 {
			return true
		}
	}
	return false
}

func (m *model) store() *discussions.Store {
	return m.config.Panel.Store()
}

func (m *model) refreshNotes() {
	selected := ""
	if m.cursor < len(m.notes) {
		selected = m.notes[m.cursor].Path
	}
	entries, err := collectNotes(m.config.Vault, m.config.Papers)
	if err != nil {
		m.logger.Warn("listing notes failed", "err", err)
		m.errorMessage = "listing notes failed: " + err.Error()
	}
	m.notes = entries
	m.cursor = 0
	m.selectPath(selected)
}

func (m *model) selectPath(notePath string) {
	for i, n := range m.notes {
		if n.Path == notePath {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(m.notes) {
		m.cursor = 0
	}
}

func (m *model) applyLayout() {
	m.viewport.Width = m.layout.chatWidth
	m.viewport.Height = m.layout.viewportHeight
	m.composer.Width = m.layout.composerWidth
	m.markViewportDirty()
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if !m.viewportDirty {
		return
	}
	m.viewportDirty = false
	current, ok := m.store().Current()
	if !ok {
		m.viewport.SetContent(helperStyle.Render("No discussion open."))
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderDiscussion(current, m.store().Messages(), m.layout.chatWidth, m.spinner.View()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
