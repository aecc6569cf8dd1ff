package discussions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeuxFois/papervault/internal/settings"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type memBackend struct {
	mu      sync.Mutex
	doc     settings.Document
	updates int
	fail    error
	entered chan struct{}
	gate    chan struct{}
}

func (b *memBackend) Load(ctx context.Context) (settings.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Clone(), nil
}

func (b *memBackend) Update(ctx context.Context, fn func(*settings.Document) error) error {
	b.mu.Lock()
	b.updates++
	entered, gate, fail := b.entered, b.gate, b.fail
	b.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if fail != nil {
		return fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	b.doc = next
	return nil
}

func (b *memBackend) Updates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updates
}

func newManager(t *testing.T) *settings.Manager {
	t.Helper()
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	m := settings.NewManager(fsys, ".papervault/settings.json", nil)
	_, err = m.Load(context.Background())
	require.NoError(t, err)
	return m
}

func newStore(t *testing.T, backend Backend, opts Options) *Store {
	t.Helper()
	if opts.Now == nil {
		opts.Now = newClock().Now
	}
	s := NewStore(backend, opts, nil)
	t.Cleanup(s.Close)
	return s
}

func decodeFields(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields map[string]any
	require.NoError(t, dec.Decode(&fields))
	return fields
}

func TestNormalizeMessageStringifiesContentAndReadsEpochMillis(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	want := time.UnixMilli(1700000000000).UTC()

	inputs := map[string]map[string]any{
		"json":  decodeFields(t, `{"role":"assistant","content":123,"timestamp":1700000000000}`),
		"go":    {"role": "assistant", "content": 123, "timestamp": int64(1700000000000)},
		"float": {"role": "assistant", "content": float64(123), "timestamp": float64(1700000000000)},
	}
	for name, fields := range inputs {
		t.Run(name, func(t *testing.T) {
			msg, ok := NormalizeMessage(fields, now)
			require.True(t, ok)
			assert.Equal(t, RoleAssistant, msg.Role)
			assert.Equal(t, "123", msg.Content)
			assert.True(t, msg.Timestamp.Equal(want), "timestamp %s", msg.Timestamp)
			assert.False(t, msg.IsTyping)
			assert.NotEmpty(t, msg.ID)
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"rfc3339", "2024-05-06T07:08:09Z", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)},
		{"numeric string", "1700000000000", time.UnixMilli(1700000000000).UTC()},
		{"time", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"garbage", "yesterday-ish", now},
		{"nil", nil, now},
		{"negative", -5, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTimestamp(tt.raw, now)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalizeMessageRejectsEmptyAndDefaultsRole(t *testing.T) {
	now := time.Now()
	_, ok := NormalizeMessage(map[string]any{"role": "user", "content": "  "}, now)
	assert.False(t, ok)

	msg, ok := NormalizeMessage(map[string]any{"role": "robot", "content": true, "isTyping": true}, now)
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "true", msg.Content)
	assert.False(t, msg.IsTyping)
}

func TestAddMessageDeduplicatesAssistantRepeat(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{})
	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)

	_, ok := s.AddMessage(RoleUser, "question")
	require.True(t, ok)
	first, ok := s.AddMessage(RoleAssistant, "X")
	require.True(t, ok)
	second, ok := s.AddMessage(RoleAssistant, "X")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Len(t, s.Messages(), 2)

	_, ok = s.AddMessage(RoleUser, "question")
	require.True(t, ok)
	assert.Len(t, s.Messages(), 3, "user repeats are kept")
}

func TestAddMessageRejectsEmptyAndRequiresDiscussion(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{})
	_, ok := s.AddMessage(RoleUser, "hello")
	assert.False(t, ok)

	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)
	_, ok = s.AddMessage(RoleUser, "   ")
	assert.False(t, ok)

	_, ok = s.AddMessage(Role("narrator"), "hi")
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, s.Messages()[0].Role)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t)
	s := newStore(t, manager, Options{})

	d, err := s.StartNew(ctx, "Papers/ML/attention.md")
	require.NoError(t, err)
	roles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant, RoleSystem}
	for i, role := range roles {
		_, ok := s.AddMessage(role, fmt.Sprintf("message %d", i))
		require.True(t, ok)
	}
	_, err = s.AddPlaceholder()
	require.NoError(t, err)
	original := s.Messages()
	require.NoError(t, s.SaveCurrent(ctx))

	reloaded := newStore(t, manager, Options{})
	require.NoError(t, reloaded.LoadAll(ctx))
	loaded, err := reloaded.LoadDiscussion(ctx, d.ID, "")
	require.NoError(t, err)

	require.Len(t, loaded.History, 5)
	assert.Equal(t, 5, loaded.MessageCount)
	assert.Equal(t, StateActive, loaded.State)
	assert.Equal(t, "message 0", loaded.Title)
	for i, m := range loaded.History {
		assert.Equal(t, original[i].Role, m.Role)
		assert.Equal(t, original[i].Content, m.Content)
		assert.Equal(t, original[i].ID, m.ID)
		assert.WithinDuration(t, original[i].Timestamp, m.Timestamp, time.Millisecond)
		assert.False(t, m.IsTyping)
		assert.NotEqual(t, ThinkingPlaceholder, m.Content)
	}
	assert.Equal(t, []string{"message 0", "message 2"}, loaded.UserMessageHistory)
}

func TestEmptyDiscussionIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})

	d, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	require.NoError(t, s.SaveCurrent(ctx))
	require.NoError(t, s.SaveAll(ctx))

	assert.NotContains(t, string(backend.doc.Discussions), d.ID)
	assert.Empty(t, s.GlobalHistory())
}

func TestGlobalHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, &memBackend{}, Options{})

	var ids []string
	for i := 0; i < 105; i++ {
		d, err := s.StartNew(ctx, fmt.Sprintf("Papers/note-%d.md", i%7))
		require.NoError(t, err)
		_, ok := s.AddMessage(RoleUser, fmt.Sprintf("question %d", i))
		require.True(t, ok)
		require.NoError(t, s.SaveCurrent(ctx))
		ids = append(ids, d.ID)
	}

	history := s.GlobalHistory()
	require.Len(t, history, MaxGlobalHistory)
	assert.Equal(t, ids[104], history[0].ID)
	assert.Equal(t, ids[5], history[99].ID)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].LastUpdated.After(history[i-1].LastUpdated), "entry %d out of order", i)
	}
}

func TestSaveRequestsCollapseWhileSaving(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	s := newStore(t, backend, Options{})
	_, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	_, ok := s.AddMessage(RoleUser, "hello")
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- s.SaveCurrent(ctx) }()
	<-backend.entered

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SaveCurrent(ctx))
		}()
	}
	wg.Wait()
	close(backend.gate)
	require.NoError(t, <-done)

	assert.Equal(t, 2, backend.Updates())
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{fail: errors.New("disk full")}
	var notified []error
	s := newStore(t, backend, Options{Notify: func(err error) { notified = append(notified, err) }})

	d, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	_, ok := s.AddMessage(RoleUser, "keep me")
	require.True(t, ok)

	err = s.SaveCurrent(ctx)
	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	require.Len(t, notified, 1)
	assert.Len(t, s.Messages(), 1)

	backend.mu.Lock()
	backend.fail = nil
	backend.mu.Unlock()
	require.NoError(t, s.SaveAll(ctx))
	assert.Contains(t, string(backend.doc.Discussions), d.ID)
	assert.Contains(t, string(backend.doc.Discussions), "keep me")
}

func TestDeleteMessageUndo(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{})
	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)
	a, _ := s.AddMessage(RoleUser, "a")
	b, _ := s.AddMessage(RoleAssistant, "b")
	s.AddMessage(RoleUser, "c")

	require.NoError(t, s.DeleteMessage(b))
	assert.Len(t, s.Messages(), 2)
	assert.ErrorIs(t, s.DeleteMessage("missing"), ErrMessageNotFound)

	require.True(t, s.UndoDelete())
	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, a, msgs[0].ID)
	assert.Equal(t, b, msgs[1].ID)
	assert.False(t, s.UndoDelete(), "undo is single use")
}

func TestUndoExpires(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{UndoWindow: 20 * time.Millisecond})
	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)
	id, _ := s.AddMessage(RoleUser, "a")
	require.NoError(t, s.DeleteMessage(id))
	require.True(t, s.CanUndo())

	require.Eventually(t, func() bool { return !s.CanUndo() }, time.Second, 5*time.Millisecond)
	assert.False(t, s.UndoDelete())
}

func TestUpdateMessageClearsTypingAndSaves(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})
	_, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "q")
	placeholder, err := s.AddPlaceholder()
	require.NoError(t, err)

	require.NoError(t, s.UpdateMessage(ctx, placeholder, "answer"))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.False(t, msgs[1].IsTyping)
	assert.Contains(t, string(backend.doc.Discussions), "answer")
	assert.ErrorIs(t, s.UpdateMessage(ctx, "nope", "x"), ErrMessageNotFound)
}

func TestStartNewSavesUnsavedDiscussion(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})
	first, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "first thread")

	second, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Empty(t, s.Messages())
	assert.Contains(t, string(backend.doc.Discussions), first.ID)

	list := s.DiscussionsFor("Papers/a.md")
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	entry, ok := s.Locate(first.ID)
	require.True(t, ok)
	assert.Equal(t, "Papers/a.md", entry.NotePath)
}

func TestLoadDiscussionFallbacks(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{doc: settings.Document{
		Discussions: json.RawMessage(`{
			"Papers/a.md": [
				{"id": "discussion_1_a", "messages": [{"role": "user", "content": "legacy", "timestamp": 1700000000000}], "lastUpdated": "1700000000500"}
			],
			"discussion_2_b": {"id": "discussion_2_b", "history": [{"role": "assistant", "content": 42}]}
		}`),
	}}
	s := newStore(t, backend, Options{})
	require.NoError(t, s.LoadAll(ctx))

	d, err := s.LoadDiscussion(ctx, "discussion_1_a", "Papers/wrong.md")
	require.NoError(t, err)
	assert.Equal(t, "Papers/a.md", d.NotePath)
	assert.Equal(t, "legacy", d.History[0].Content)
	assert.Equal(t, "legacy", d.Title)

	loose, err := s.LoadDiscussion(ctx, "discussion_2_b", "Papers/b.md")
	require.NoError(t, err)
	assert.Equal(t, "42", loose.History[0].Content)
	assert.Equal(t, "Papers/b.md", loose.NotePath)
	entry, ok := s.Locate("discussion_2_b")
	require.True(t, ok)
	assert.Equal(t, "Papers/b.md", entry.NotePath)

	_, err = s.LoadDiscussion(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDiscussionRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})

	old, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "old")
	require.NoError(t, s.SaveCurrent(ctx))
	active, err := s.StartNew(ctx, "Papers/b.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "active")

	assert.ErrorIs(t, s.DeleteDiscussion(ctx, old.ID, "", nil), ErrNotConfirmed)
	assert.ErrorIs(t, s.DeleteDiscussion(ctx, old.ID, "", func(Summary) bool { return false }), ErrNotConfirmed)
	assert.Len(t, s.DiscussionsFor("Papers/a.md"), 1)

	var asked Summary
	require.NoError(t, s.DeleteDiscussion(ctx, old.ID, "Papers/a.md", func(sum Summary) bool {
		asked = sum
		return true
	}))
	assert.Equal(t, "old", asked.Title)
	assert.Empty(t, s.DiscussionsFor("Papers/a.md"))
	assert.NotContains(t, s.Notes(), "Papers/a.md")
	for _, summary := range s.GlobalHistory() {
		assert.NotEqual(t, old.ID, summary.ID)
	}
	cur, ok := s.Current()
	require.True(t, ok, "deleting another discussion keeps the live one")
	assert.Equal(t, active.ID, cur.ID)

	require.NoError(t, s.DeleteDiscussion(ctx, active.ID, "", func(Summary) bool { return true }))
	_, ok = s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.Messages())
	assert.ErrorIs(t, s.DeleteDiscussion(ctx, active.ID, "", func(Summary) bool { return true }), ErrNotFound)
}

func TestRouteOrphanedResponseLeavesLiveBufferAlone(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})

	a, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "question on A")
	require.NoError(t, s.SaveCurrent(ctx))
	_, err = s.StartNew(ctx, "Papers/b.md")
	require.NoError(t, err)

	require.NoError(t, s.RouteOrphanedResponse(ctx, "Papers/a.md", a.ID, Message{Role: RoleAssistant, Content: "answer for A"}))
	assert.Empty(t, s.Messages())

	stored := s.DiscussionsFor("Papers/a.md")
	require.Len(t, stored, 1)
	require.Len(t, stored[0].History, 2)
	assert.Equal(t, "answer for A", stored[0].History[1].Content)
	assert.Contains(t, string(backend.doc.Discussions), "answer for A")

	require.NoError(t, s.RouteOrphanedResponse(ctx, "Papers/c.md", "discussion_9_x", Message{Role: RoleAssistant, Content: "late"}))
	orphan := s.DiscussionsFor("Papers/c.md")
	require.Len(t, orphan, 1)
	assert.Equal(t, orphanedTitle, orphan[0].Title)

	require.NoError(t, s.RouteOrphanedResponse(ctx, "Papers/d.md", "", Message{Role: RoleAssistant, Content: "legacy"}))
	conv, ok := s.Conversation("Papers/d.md")
	require.True(t, ok)
	assert.Equal(t, "legacy", conv.History[0].Content)
}

func historyContents(d Discussion) []string {
	var out []string
	for _, m := range d.History {
		out = append(out, m.Content)
	}
	return out
}

func storedDiscussion(t *testing.T, s *Store, notePath, id string) Discussion {
	t.Helper()
	for _, d := range s.DiscussionsFor(notePath) {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("discussion %s not stored under %s", id, notePath)
	return Discussion{}
}

func TestSwitchDuringSaveKeepsOutgoingMessages(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	s := newStore(t, backend, Options{})

	old, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	_, ok := s.AddMessage(RoleUser, "first")
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- s.SaveCurrent(ctx) }()
	<-backend.entered

	_, ok = s.AddMessage(RoleUser, "second")
	require.True(t, ok)
	_, err = s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, historyContents(storedDiscussion(t, s, "Papers/a.md", old.ID)))

	close(backend.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, backend.Updates())
	assert.Contains(t, string(backend.doc.Discussions), "second")
}

func TestLoadDiscussionDuringSaveKeepsOutgoingMessages(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})

	target, err := s.StartNew(ctx, "Papers/b.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "on b")
	require.NoError(t, s.SaveCurrent(ctx))

	old, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "first")

	backend.mu.Lock()
	backend.entered = make(chan struct{}, 1)
	backend.gate = make(chan struct{})
	backend.mu.Unlock()
	done := make(chan error, 1)
	go func() { done <- s.SaveCurrent(ctx) }()
	<-backend.entered

	s.AddMessage(RoleUser, "second")
	_, err = s.LoadDiscussion(ctx, target.ID, "Papers/b.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, historyContents(storedDiscussion(t, s, "Papers/a.md", old.ID)))

	close(backend.gate)
	require.NoError(t, <-done)
	assert.Contains(t, string(backend.doc.Discussions), "second")
}

func TestDeliverReplyReplacesOrAppendsOrRoutes(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := newStore(t, backend, Options{})

	a, err := s.StartNew(ctx, "Papers/a.md")
	require.NoError(t, err)
	s.AddMessage(RoleUser, "q1")
	placeholder, err := s.AddPlaceholder()
	require.NoError(t, err)

	live, err := s.DeliverReply(ctx, "Papers/a.md", a.ID, placeholder, "a1")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, []string{"q1", "a1"}, historyContents(Discussion{History: s.Messages()}))

	// a save and reload drop the placeholder; the reply is appended instead
	s.AddMessage(RoleUser, "q2")
	placeholder, err = s.AddPlaceholder()
	require.NoError(t, err)
	require.NoError(t, s.SaveCurrent(ctx))
	_, err = s.LoadDiscussion(ctx, a.ID, "Papers/a.md")
	require.NoError(t, err)
	live, err = s.DeliverReply(ctx, "Papers/a.md", a.ID, placeholder, "a2")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"}, historyContents(Discussion{History: s.Messages()}))
	assert.False(t, s.Dirty())

	s.AddMessage(RoleUser, "q3")
	placeholder, err = s.AddPlaceholder()
	require.NoError(t, err)
	_, err = s.StartNew(ctx, "Papers/b.md")
	require.NoError(t, err)
	live, err = s.DeliverReply(ctx, "Papers/a.md", a.ID, placeholder, "a3")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Empty(t, s.Messages())
	assert.Equal(t, []string{"q1", "a1", "q2", "a2", "q3", "a3"}, historyContents(storedDiscussion(t, s, "Papers/a.md", a.ID)))
	assert.Contains(t, string(backend.doc.Discussions), "a3")

	live, err = s.FailReply(ctx, a.ID, placeholder, "Error: boom")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Empty(t, s.Messages())
}

func seedDocument(t *testing.T, id, content string, updated time.Time) settings.Document {
	t.Helper()
	d := Discussion{
		ID:          id,
		Title:       "seed",
		NotePath:    "Papers/a.md",
		NoteName:    "a",
		State:       StateSaved,
		History:     []Message{{ID: "m1", Role: RoleUser, Content: content, Timestamp: updated}},
		StartTime:   updated,
		LastUpdated: updated,
	}
	raw, err := json.Marshal(map[string]map[string]Discussion{"Papers/a.md": {id: d}})
	require.NoError(t, err)
	return settings.Document{Discussions: raw}
}

func TestLoadAllMergePolicies(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		policy MergePolicy
		want   string
	}{
		{MergeMemoryWins, "memory"},
		{MergeLastWriteWins, "disk"},
	} {
		t.Run(string(tt.policy), func(t *testing.T) {
			backend := &memBackend{}
			s := newStore(t, backend, Options{MergePolicy: tt.policy})
			d, err := s.StartNew(ctx, "Papers/a.md")
			require.NoError(t, err)
			s.AddMessage(RoleUser, "memory")
			require.NoError(t, s.SaveCurrent(ctx))
			_, err = s.StartNew(ctx, "Papers/z.md")
			require.NoError(t, err)

			backend.doc = seedDocument(t, d.ID, "disk", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, s.LoadAll(ctx))

			list := s.DiscussionsFor("Papers/a.md")
			require.Len(t, list, 1)
			assert.Equal(t, tt.want, list[0].History[0].Content)
		})
	}
}

func TestLoadAllAddsUnknownDiscussions(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{doc: seedDocument(t, "discussion_5_new", "from disk", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	s := newStore(t, backend, Options{})
	require.NoError(t, s.LoadAll(ctx))

	latest, ok := s.Latest("Papers/a.md")
	require.True(t, ok)
	assert.Equal(t, "discussion_5_new", latest.ID)
	assert.Equal(t, []string{"Papers/a.md"}, s.Notes())
}

func TestIncludedNotesAndToggles(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{})
	assert.ErrorIs(t, s.SetIncludePDF(false), ErrNoActiveDiscussion)

	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)
	require.NoError(t, s.SetIncludePDF(false))
	require.NoError(t, s.IncludeNote("Notes/x.md", "x", "one"))
	require.NoError(t, s.IncludeNote("Notes/x.md", "x", "two"))
	require.NoError(t, s.IncludeNote("Notes/y.md", "y", "three"))
	require.NoError(t, s.ToggleIncludedNote("Notes/y.md"))
	assert.ErrorIs(t, s.ToggleIncludedNote("Notes/none.md"), ErrNotFound)

	cur, _ := s.Current()
	assert.False(t, cur.IncludePDFInContext)
	require.Len(t, cur.IncludedNotes, 2)
	assert.Equal(t, "two", cur.IncludedNotes[0].Content)
	assert.False(t, cur.IncludedNotes[1].IncludeInContext)

	require.NoError(t, s.RemoveIncludedNote("Notes/x.md"))
	cur, _ = s.Current()
	assert.Len(t, cur.IncludedNotes, 1)
}

func TestRecall(t *testing.T) {
	s := newStore(t, &memBackend{}, Options{})
	_, err := s.StartNew(context.Background(), "Papers/a.md")
	require.NoError(t, err)
	_, ok := s.RecallPrevious()
	assert.False(t, ok)

	s.AddMessage(RoleUser, "first")
	s.AddMessage(RoleUser, "second")

	got, _ := s.RecallPrevious()
	assert.Equal(t, "second", got)
	got, _ = s.RecallPrevious()
	assert.Equal(t, "first", got)
	got, _ = s.RecallPrevious()
	assert.Equal(t, "first", got)
	got, _ = s.RecallNext()
	assert.Equal(t, "second", got)
	got, ok = s.RecallNext()
	assert.True(t, ok)
	assert.Equal(t, "", got)
}

func TestDeriveTitle(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "Discussion 2024-03-01 09:30", DeriveTitle(nil, started))

	long := strings.Repeat("word ", 20)
	title := DeriveTitle([]Message{{Role: RoleAssistant, Content: "hi"}, {Role: RoleUser, Content: long}}, started)
	assert.Len(t, []rune(title), 50)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestExportMarkdown(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := ExportMarkdown(Discussion{
		Title:     "On attention",
		NoteName:  "attention",
		StartTime: ts,
		History: []Message{
			{Role: RoleUser, Content: "why?", Timestamp: ts},
			{Role: RoleAssistant, Content: ThinkingPlaceholder, IsTyping: true, Timestamp: ts},
			{Role: RoleAssistant, Content: "because", Timestamp: ts},
		},
	})
	assert.Contains(t, out, "# On attention")
	assert.Contains(t, out, "- Note: [[attention]]")
	assert.Contains(t, out, "- Messages: 2")
	assert.Contains(t, out, "## You (")
	assert.Contains(t, out, "because")
	assert.NotContains(t, out, ThinkingPlaceholder)
}
