package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/vault"
)

func TestCollectNotesListsPapersFirst(t *testing.T) {
	v, err := vault.NewMemory(nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	for p, content := range map[string]string{
		"Papers/A.md":              "---\ntitle: Paper A\n---\n",
		"Papers/ML/B.md":           "---\ntitle: Beta\n---\n",
		"Papers/_Paper Index.md":   "index",
		"Inbox.md":                 "loose note",
		"Archive/Old.md":           "old",
		"Papers/figure.png":        "png",
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

	entries, err := collectNotes(v, index)
	if err != nil {
		t.Fatalf("collectNotes: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Label)
	}
	want := []string{"Beta", "Paper A", "Old", "Inbox"}
	if len(got) != len(want) {
		t.Fatalf("unexpected entries %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %q want %q (all: %v)", i, got[i], want[i], got)
		}
	}
	if !entries[0].Managed || entries[2].Managed {
		t.Fatalf("managed flags wrong: %+v", entries)
	}

	plain, err := collectNotes(v, nil)
	if err != nil {
		t.Fatalf("collectNotes without index: %v", err)
	}
	if len(plain) != 5 {
		t.Fatalf("expected every note without an index, got %d", len(plain))
	}
}

func TestTrimmedLabel(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer label here", 8, "a longe…"},
		{"  padded  ", 10, "padded"},
	}
	for _, tc := range cases {
		if got := trimmedLabel(tc.in, tc.limit); got != tc.want {
			t.Fatalf("trimmedLabel(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestLastMessageIDSkipsPlaceholder(t *testing.T) {
	history := []discussions.Message{
		{ID: "a", Role: discussions.RoleUser, Content: "q"},
		{ID: "b", Role: discussions.RoleAssistant, Content: discussions.ThinkingPlaceholder, IsTyping: true},
	}
	if got := lastMessageID(history); got != "a" {
		t.Fatalf("lastMessageID = %q", got)
	}
	if lastMessageID(nil) != "" {
		t.Fatalf("expected empty id for empty history")
	}
}

func TestListenForwardsOneMessage(t *testing.T) {
	if listen(nil) != nil {
		t.Fatalf("nil channel should produce no command")
	}
	events := make(chan tea.Msg, 1)
	events <- StoreChangedMsg{}
	if _, ok := listen(events)().(StoreChangedMsg); !ok {
		t.Fatalf("expected StoreChangedMsg")
	}
	close(events)
	if msg := listen(events)(); msg != nil {
		t.Fatalf("closed channel should yield nil, got %T", msg)
	}
}

func TestRebuildJobWritesIndex(t *testing.T) {
	v, _ := vault.NewMemory(nil)
	if _, err := v.Write("Papers/A.md", "---\ntitle: Paper A\n---\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	index := papers.NewSynchronizer(v, papers.Options{}, nil)
	t.Cleanup(index.Stop)

	msg, err := rebuildJob(index)(context.Background())
	if err != nil {
		t.Fatalf("rebuildJob: %v", err)
	}
	if res, ok := msg.(rebuildResultMsg); !ok || res.err != nil {
		t.Fatalf("unexpected message %#v", msg)
	}
	if !v.Exists(index.IndexPath()) {
		t.Fatalf("index note not written")
	}
}
