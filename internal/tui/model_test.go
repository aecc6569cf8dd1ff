package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hack-pad/hackpadfs/mem"

	"github.com/DeuxFois/papervault/internal/chat"
	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/llm"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/settings"
	"github.com/DeuxFois/papervault/internal/vault"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f fakeLLM) Name() string { return "fake" }

func (f fakeLLM) Chat(ctx context.Context, messages []llm.Message, maxTokens int) (string, error) {
	return f.reply, f.err
}

type testEnv struct {
	model  *model
	panel  *chat.Panel
	vault  *vault.Vault
	events chan tea.Msg
}

func newTestModel(t *testing.T, client llm.Client) *testEnv {
	t.Helper()
	v, err := vault.NewMemory(nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	for p, content := range map[string]string{
		"Papers/A.md": "---\ntitle: Paper A\n---\nabout attention\n",
		"Papers/B.md": "---\ntitle: Paper B\n---\nabout convolutions\n",
		"Inbox.md":    "scratch\n",
	} {
		if _, err := v.Write(p, content); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	index := papers.NewSynchronizer(v, papers.Options{}, nil)
	t.Cleanup(index.Stop)
	if _, err := index.BuildFullIndex(); err != nil {
		t.Fatalf("BuildFullIndex: %v", err)
	}
	fsys, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem.NewFS: %v", err)
	}
	store := discussions.NewStore(settings.NewManager(fsys, "settings.json", nil), discussions.Options{}, nil)
	t.Cleanup(store.Close)
	panel := chat.NewPanel(store, v, index, client, chat.Options{}, nil)

	events := make(chan tea.Msg, 8)
	m := New(Config{Panel: panel, Vault: v, Papers: index, Events: events}).(*model)
	return &testEnv{model: m, panel: panel, vault: v, events: events}
}

// open runs the switch job synchronously and feeds its result back.
func (e *testEnv) open(t *testing.T, notePath string) {
	t.Helper()
	msg, err := switchNoteJob(e.panel, notePath)(context.Background())
	if err != nil {
		t.Fatalf("switch to %s: %v", notePath, err)
	}
	e.model.Update(msg)
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestNewListsPapersBeforeNotes(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	var labels []string
	for _, n := range env.model.notes {
		labels = append(labels, n.Label)
	}
	if got := strings.Join(labels, ","); got != "Paper A,Paper B,Inbox" {
		t.Fatalf("unexpected note list %s", got)
	}
	if env.model.focus != focusNotes {
		t.Fatalf("list should start focused")
	}
}

func TestListNavigationOpensNote(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	m := env.model
	m.Update(key(tea.KeyDown))
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}
	if _, cmd := m.Update(key(tea.KeyEnter)); cmd == nil {
		t.Fatalf("enter should start the switch job")
	}

	env.open(t, m.notes[m.cursor].Path)
	if env.panel.NotePath() != "Papers/B.md" {
		t.Fatalf("active note = %q", env.panel.NotePath())
	}
	if m.focus != focusComposer || !m.composer.Focused() {
		t.Fatalf("composer should take focus after opening a note")
	}
}

func TestSendAddsPromptAndPlaceholder(t *testing.T) {
	env := newTestModel(t, fakeLLM{reply: "hi"})
	m := env.model
	if cmd := m.send(); cmd != nil {
		t.Fatalf("empty composer should not send")
	}

	m.setFocus(focusComposer)
	m.composer.SetValue("what is attention?")
	m.send()
	if m.errorMessage != "Open a note first." {
		t.Fatalf("expected missing note error, got %q", m.errorMessage)
	}

	env.open(t, "Papers/A.md")
	m.composer.SetValue("what is attention?")
	if cmd := m.processComposerKey(key(tea.KeyEnter)); cmd == nil {
		t.Fatalf("enter should start the reply job")
	}
	if m.composer.Value() != "" {
		t.Fatalf("composer not cleared")
	}
	msgs := env.panel.Store().Messages()
	if len(msgs) != 2 || msgs[0].Content != "what is attention?" || !msgs[1].IsPlaceholder() {
		t.Fatalf("unexpected live buffer %+v", msgs)
	}
	env.panel.Cancel()
}

func TestReplyJobFillsPlaceholder(t *testing.T) {
	env := newTestModel(t, fakeLLM{reply: "a weighting"})
	env.open(t, "Papers/A.md")

	req, err := env.panel.Send(context.Background(), "what is attention?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := replyJob(env.panel, req)(context.Background())
	if err != nil {
		t.Fatalf("replyJob: %v", err)
	}
	env.model.Update(msg)

	msgs := env.panel.Store().Messages()
	if len(msgs) != 2 || msgs[1].Content != "a weighting" || msgs[1].IsTyping {
		t.Fatalf("unexpected live buffer %+v", msgs)
	}
	if env.model.infoMessage != "Reply received." {
		t.Fatalf("unexpected info %q", env.model.infoMessage)
	}
	if !strings.Contains(env.model.View(), "a weighting") {
		t.Fatalf("reply not rendered")
	}
}

func TestReplyAfterSwitchIsReportedAsRouted(t *testing.T) {
	env := newTestModel(t, fakeLLM{reply: "late answer"})
	env.open(t, "Papers/A.md")
	req, err := env.panel.Send(context.Background(), "question on A")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	env.open(t, "Papers/B.md")

	msg, _ := replyJob(env.panel, req)(context.Background())
	env.model.Update(msg)
	if !strings.Contains(env.model.infoMessage, "Papers/A.md") {
		t.Fatalf("expected routed notice, got %q", env.model.infoMessage)
	}
	for _, m := range env.panel.Store().Messages() {
		if m.Content == "late answer" {
			t.Fatalf("reply leaked into the live discussion of B")
		}
	}
}

func TestProviderErrorShowsInStatus(t *testing.T) {
	env := newTestModel(t, fakeLLM{err: errors.New("model offline")})
	env.open(t, "Papers/A.md")
	req, _ := env.panel.Send(context.Background(), "hello")
	msg, err := replyJob(env.panel, req)(context.Background())
	if err == nil {
		t.Fatalf("expected job error")
	}
	env.model.Update(msg)
	if !strings.Contains(env.model.errorMessage, "model offline") {
		t.Fatalf("unexpected error message %q", env.model.errorMessage)
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	env.open(t, "Papers/A.md")
	m := env.model
	before, _ := env.panel.Store().Current()

	m.Update(key(tea.KeyCtrlD))
	if !m.confirming || !strings.Contains(m.infoMessage, "(y/n)") {
		t.Fatalf("expected confirmation prompt, got %q", m.infoMessage)
	}
	if _, cmd := m.Update(runes("n")); cmd != nil {
		t.Fatalf("declining should not start a job")
	}
	if m.confirming {
		t.Fatalf("confirmation not cleared")
	}
	if current, _ := env.panel.Store().Current(); current.ID != before.ID {
		t.Fatalf("discussion changed without confirmation")
	}

	m.Update(key(tea.KeyCtrlD))
	if _, cmd := m.Update(runes("y")); cmd == nil {
		t.Fatalf("confirming should start the delete job")
	}
}

func TestDeleteJobOpensFreshDiscussion(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	env.open(t, "Papers/A.md")
	store := env.panel.Store()
	store.AddMessage(discussions.RoleUser, "keep me?")
	before, _ := store.Current()

	msg, err := deleteJob(env.panel, before)(context.Background())
	if err != nil {
		t.Fatalf("deleteJob: %v", err)
	}
	env.model.Update(msg)
	after, ok := store.Current()
	if !ok || after.ID == before.ID || len(after.History) != 0 {
		t.Fatalf("expected a fresh discussion, got %+v", after)
	}
	if len(store.DiscussionsFor("Papers/A.md")) != 1 {
		t.Fatalf("deleted discussion still listed")
	}
}

func TestDeleteLastMessageAndUndo(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	env.open(t, "Papers/A.md")
	store := env.panel.Store()
	store.AddMessage(discussions.RoleUser, "first")
	store.AddMessage(discussions.RoleAssistant, "second")
	m := env.model

	m.Update(key(tea.KeyCtrlX))
	if msgs := store.Messages(); len(msgs) != 1 || msgs[0].Content != "first" {
		t.Fatalf("unexpected buffer after delete %+v", msgs)
	}
	m.Update(key(tea.KeyCtrlZ))
	if msgs := store.Messages(); len(msgs) != 2 || msgs[1].Content != "second" {
		t.Fatalf("undo did not restore %+v", msgs)
	}
	m.Update(key(tea.KeyCtrlZ))
	if m.infoMessage != "Nothing to undo." {
		t.Fatalf("unexpected info %q", m.infoMessage)
	}
}

func TestContextToggles(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	env.open(t, "Papers/A.md")
	m := env.model

	m.Update(key(tea.KeyCtrlP))
	m.Update(key(tea.KeyCtrlO))
	current, _ := env.panel.Store().Current()
	if current.IncludePDFInContext || current.IncludeNoteInContext {
		t.Fatalf("toggles not applied: %+v", current)
	}
	m.Update(key(tea.KeyCtrlP))
	current, _ = env.panel.Store().Current()
	if !current.IncludePDFInContext {
		t.Fatalf("pdf toggle should flip back on")
	}
	if m.infoMessage != "PDF context on." {
		t.Fatalf("unexpected info %q", m.infoMessage)
	}
}

func TestComposerRecall(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	env.open(t, "Papers/A.md")
	store := env.panel.Store()
	store.AddMessage(discussions.RoleUser, "one")
	store.AddMessage(discussions.RoleUser, "two")
	m := env.model

	steps := []struct {
		key  tea.KeyType
		want string
	}{
		{tea.KeyUp, "two"},
		{tea.KeyUp, "one"},
		{tea.KeyUp, "one"},
		{tea.KeyDown, "two"},
		{tea.KeyDown, ""},
	}
	for i, step := range steps {
		m.Update(key(step.key))
		if got := m.composer.Value(); got != step.want {
			t.Fatalf("step %d: composer = %q, want %q", i, got, step.want)
		}
	}
}

func TestVaultEventsRefreshList(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	if _, err := env.vault.Write("Later.md", "new"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, cmd := env.model.Update(EventMsg{Event: vault.Event{Kind: vault.EventCreate, File: vault.File{Path: "Later.md"}}})
	if cmd == nil {
		t.Fatalf("event handling should keep listening")
	}
	found := false
	for _, n := range env.model.notes {
		found = found || n.Path == "Later.md"
	}
	if !found {
		t.Fatalf("new note missing from list")
	}

	env.model.Update(RebuildMsg{Result: papers.RebuildResult{Papers: 2, Sectors: 1}})
	if env.model.infoMessage != "Index rebuilt: 2 papers in 1 sectors." {
		t.Fatalf("unexpected info %q", env.model.infoMessage)
	}
}

func TestQuitSavesBeforeExit(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	m := env.model
	_, cmd := m.Update(key(tea.KeyCtrlC))
	if cmd == nil || !m.quitting {
		t.Fatalf("ctrl+c should start saving")
	}
	_, cmd = m.Update(saveResultMsg{})
	if cmd == nil {
		t.Fatalf("expected quit after save")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestHelpToggleAndView(t *testing.T) {
	env := newTestModel(t, fakeLLM{})
	m := env.model
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m.Update(runes("?"))
	view := m.View()
	for _, want := range []string{"Notes", "Paper A", "Inbox", "Ctrl+D", "2 papers"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	m.Update(runes("?"))
	if strings.Contains(m.View(), "Ctrl+D") {
		t.Fatalf("help should hide on second press")
	}
}
