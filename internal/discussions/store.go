// Package discussions keeps per-note chat discussions, the live message
// buffer of the active one, and their persistence in the settings document.
package discussions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/jobs"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/settings"
)

// DefaultUndoWindow is how long a deleted message can be restored.
const DefaultUndoWindow = 15 * time.Second

// Backend loads and atomically updates the settings document.
// *settings.Manager implements it.
type Backend interface {
	Load(ctx context.Context) (settings.Document, error)
	Update(ctx context.Context, fn func(*settings.Document) error) error
}

type MergePolicy string

const (
	// MergeMemoryWins keeps the in-memory copy on every id collision.
	MergeMemoryWins MergePolicy = "memory-wins"
	// MergeLastWriteWins keeps whichever copy was updated last.
	MergeLastWriteWins MergePolicy = "last-write-wins"
)

// ParseMergePolicy defaults to MergeMemoryWins.
func ParseMergePolicy(s string) MergePolicy {
	if MergePolicy(strings.ToLower(strings.TrimSpace(s))) == MergeLastWriteWins {
		return MergeLastWriteWins
	}
	return MergeMemoryWins
}

type Options struct {
	MergePolicy MergePolicy
	UndoWindow  time.Duration
	Now         func() time.Time
	// OnChange is called after every mutation of the live buffer.
	OnChange func()
	// Notify receives non-fatal persistence failures.
	Notify func(error)
}

// IndexEntry locates a discussion without scanning every note.
type IndexEntry struct {
	NotePath    string
	LastUpdated time.Time
}

type undoSlot struct {
	discussionID string
	message      Message
	index        int
	timer        *time.Timer
}

// Store owns every discussion. The discussions map is the source of truth;
// the per-note id sets and the id index are derived from it.
type Store struct {
	backend    Backend
	logger     *log.Logger
	policy     MergePolicy
	undoWindow time.Duration
	now        func() time.Time
	onChange   func()
	notify     func(error)

	saver     *jobs.Coalescer
	persister *jobs.Coalescer

	mu              sync.Mutex
	sec             sections
	noteDiscussions map[string]map[string]struct{}
	index           map[string]IndexEntry
	current         *Discussion
	dirty           bool
	recall          int
	undo            *undoSlot
}

func NewStore(backend Backend, opts Options, logger *log.Logger) *Store {
	s := &Store{
		backend:         backend,
		logger:          logging.OrDiscard(logger).With("component", "discussions"),
		policy:          opts.MergePolicy,
		undoWindow:      opts.UndoWindow,
		now:             opts.Now,
		onChange:        opts.OnChange,
		notify:          opts.Notify,
		sec:             newSections(),
		noteDiscussions: map[string]map[string]struct{}{},
		index:           map[string]IndexEntry{},
	}
	if s.policy == "" {
		s.policy = MergeMemoryWins
	}
	if s.undoWindow <= 0 {
		s.undoWindow = DefaultUndoWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.saver = jobs.NewCoalescer("save-discussion", func(ctx context.Context) error {
		return s.persist(ctx, "save")
	}, logger)
	s.persister = jobs.NewCoalescer("save-settings", func(ctx context.Context) error {
		return s.persist(ctx, "save-all")
	}, logger)
	return s
}

// Policy returns the merge policy used by LoadAll.
func (s *Store) Policy() MergePolicy { return s.policy }

// Close drops the pending undo slot.
func (s *Store) Close() {
	s.mu.Lock()
	s.clearUndoLocked()
	s.mu.Unlock()
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// StartNew commits and saves the current discussion if it has unsaved
// messages, then opens a fresh ACTIVE discussion for notePath.
func (s *Store) StartNew(ctx context.Context, notePath string) (Discussion, error) {
	s.mu.Lock()
	committed := s.commitOutgoingLocked()
	now := s.now()
	d := &Discussion{
		ID:                   NewDiscussionID(now),
		Title:                DeriveTitle(nil, now),
		NotePath:             notePath,
		NoteName:             noteName(notePath),
		State:                StateActive,
		IncludePDFInContext:  true,
		IncludeNoteInContext: true,
		StartTime:            now,
		LastUpdated:          now,
	}
	s.storeLocked(d.Clone())
	s.current = d
	s.dirty = false
	s.recall = 0
	s.clearUndoLocked()
	out := d.Clone()
	s.mu.Unlock()

	s.persistOutgoing(ctx, committed)
	s.logger.Debug("discussion started", "id", out.ID, "note", notePath)
	s.changed()
	return out, nil
}

// Current returns the active discussion with its live buffer.
func (s *Store) Current() (Discussion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Discussion{}, false
	}
	return s.current.Clone(), true
}

// Messages returns a copy of the live buffer.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return append([]Message(nil), s.current.History...)
}

// Dirty reports whether the live buffer has changes not yet saved.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// AddMessage appends a message to the live buffer and returns its id. Unknown
// roles become assistant; empty content is rejected with ok false. An
// assistant or system message identical to the last one is not appended
// again; its id is returned instead.
func (s *Store) AddMessage(role Role, content string) (id string, ok bool) {
	s.mu.Lock()
	if s.current == nil || strings.TrimSpace(content) == "" {
		s.mu.Unlock()
		return "", false
	}
	role = ParseRole(string(role))
	now := s.now()
	msg := Message{ID: NewMessageID(now), Role: role, Content: content, Timestamp: now}

	history := s.current.History
	if n := len(history); n > 0 && role != RoleUser && history[n-1].sameAs(msg) {
		id = history[n-1].ID
		s.mu.Unlock()
		return id, true
	}

	s.current.History = append(history, msg)
	if role == RoleUser {
		s.current.UserMessageHistory = append(s.current.UserMessageHistory, content)
		s.recall = len(s.current.UserMessageHistory)
		s.current.Title = DeriveTitle(s.current.History, s.current.StartTime)
	}
	s.current.LastUpdated = now
	s.dirty = true
	s.mu.Unlock()

	s.changed()
	return msg.ID, true
}

// AddPlaceholder appends the typing marker shown while a reply is pending.
func (s *Store) AddPlaceholder() (string, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNoActiveDiscussion
	}
	now := s.now()
	msg := Message{ID: NewMessageID(now), Role: RoleAssistant, Content: ThinkingPlaceholder, Timestamp: now, IsTyping: true}
	s.current.History = append(s.current.History, msg)
	s.mu.Unlock()

	s.changed()
	return msg.ID, nil
}

// UpdateMessage replaces the content of a live message, clears its typing
// flag and saves.
func (s *Store) UpdateMessage(ctx context.Context, id, content string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoActiveDiscussion
	}
	i := indexOf(s.current.History, id)
	if i < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	s.current.History[i].Content = content
	s.current.History[i].IsTyping = false
	s.current.History[i].Timestamp = s.now()
	s.current.LastUpdated = s.now()
	s.dirty = true
	s.mu.Unlock()

	s.changed()
	return s.SaveCurrent(ctx)
}

// DeleteMessage removes a live message. It can be restored with UndoDelete
// until the undo window elapses.
func (s *Store) DeleteMessage(id string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoActiveDiscussion
	}
	i := indexOf(s.current.History, id)
	if i < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	removed := s.current.History[i]
	s.current.History = append(s.current.History[:i:i], s.current.History[i+1:]...)
	s.current.LastUpdated = s.now()
	s.dirty = true

	s.clearUndoLocked()
	slot := &undoSlot{discussionID: s.current.ID, message: removed, index: i}
	slot.timer = time.AfterFunc(s.undoWindow, func() {
		s.mu.Lock()
		if s.undo == slot {
			s.undo = nil
		}
		s.mu.Unlock()
	})
	s.undo = slot
	s.mu.Unlock()

	s.changed()
	return nil
}

// UndoDelete restores the last deleted message at its original position.
func (s *Store) UndoDelete() bool {
	s.mu.Lock()
	slot := s.undo
	if slot == nil || s.current == nil || s.current.ID != slot.discussionID {
		s.mu.Unlock()
		return false
	}
	s.clearUndoLocked()
	i := slot.index
	if i > len(s.current.History) {
		i = len(s.current.History)
	}
	history := append([]Message(nil), s.current.History[:i]...)
	history = append(history, slot.message)
	s.current.History = append(history, s.current.History[i:]...)
	s.dirty = true
	s.mu.Unlock()

	s.changed()
	return true
}

// CanUndo reports whether a deleted message can still be restored.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo != nil
}

// RemoveMessage drops a live message without an undo slot. Used for
// placeholders of cancelled requests.
func (s *Store) RemoveMessage(id string) bool {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false
	}
	i := indexOf(s.current.History, id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.current.History = append(s.current.History[:i:i], s.current.History[i+1:]...)
	s.mu.Unlock()

	s.changed()
	return true
}

func (s *Store) clearUndoLocked() {
	if s.undo != nil {
		s.undo.timer.Stop()
		s.undo = nil
	}
}

// SetIncludePDF toggles the PDF in the active discussion's context.
func (s *Store) SetIncludePDF(on bool) error {
	return s.mutateCurrent(func(d *Discussion) { d.IncludePDFInContext = on })
}

// SetIncludeNote toggles the note in the active discussion's context.
func (s *Store) SetIncludeNote(on bool) error {
	return s.mutateCurrent(func(d *Discussion) { d.IncludeNoteInContext = on })
}

// IncludeNote attaches a file snapshot to the active discussion, replacing an
// earlier snapshot of the same path.
func (s *Store) IncludeNote(notePath, name, content string) error {
	return s.mutateCurrent(func(d *Discussion) {
		note := IncludedNote{Path: notePath, Name: name, Content: content, IncludeInContext: true}
		for i := range d.IncludedNotes {
			if d.IncludedNotes[i].Path == notePath {
				d.IncludedNotes[i] = note
				return
			}
		}
		d.IncludedNotes = append(d.IncludedNotes, note)
	})
}

// RemoveIncludedNote detaches a file from the active discussion.
func (s *Store) RemoveIncludedNote(notePath string) error {
	return s.mutateCurrent(func(d *Discussion) {
		kept := d.IncludedNotes[:0]
		for _, n := range d.IncludedNotes {
			if n.Path != notePath {
				kept = append(kept, n)
			}
		}
		d.IncludedNotes = kept
	})
}

// ToggleIncludedNote flips whether an attached file is sent as context.
func (s *Store) ToggleIncludedNote(notePath string) error {
	found := false
	err := s.mutateCurrent(func(d *Discussion) {
		for i := range d.IncludedNotes {
			if d.IncludedNotes[i].Path == notePath {
				d.IncludedNotes[i].IncludeInContext = !d.IncludedNotes[i].IncludeInContext
				found = true
			}
		}
	})
	if err == nil && !found {
		return ErrNotFound
	}
	return err
}

func (s *Store) mutateCurrent(fn func(*Discussion)) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoActiveDiscussion
	}
	fn(s.current)
	s.current.LastUpdated = s.now()
	s.dirty = true
	s.mu.Unlock()

	s.changed()
	return nil
}

// RecallPrevious steps back through the active discussion's user inputs.
func (s *Store) RecallPrevious() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || len(s.current.UserMessageHistory) == 0 {
		return "", false
	}
	if s.recall > len(s.current.UserMessageHistory) {
		s.recall = len(s.current.UserMessageHistory)
	}
	if s.recall > 0 {
		s.recall--
	}
	return s.current.UserMessageHistory[s.recall], true
}

// RecallNext steps forward; past the newest input it returns an empty
// string.
func (s *Store) RecallNext() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || len(s.current.UserMessageHistory) == 0 {
		return "", false
	}
	n := len(s.current.UserMessageHistory)
	if s.recall < n-1 {
		s.recall++
		return s.current.UserMessageHistory[s.recall], true
	}
	s.recall = n
	return "", true
}

// DiscussionsFor lists the discussions of notePath, most recent first. The
// active discussion is reported with its live buffer.
func (s *Store) DiscussionsFor(notePath string) []Discussion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Discussion
	for _, d := range s.sec.discussions[notePath] {
		if s.current != nil && s.current.ID == d.ID {
			d = *s.current
		}
		out = append(out, d.Clone())
	}
	sortByRecency(out)
	return out
}

// Notes lists the notes that own at least one discussion.
func (s *Store) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.noteDiscussions))
	for notePath, ids := range s.noteDiscussions {
		if len(ids) > 0 {
			out = append(out, notePath)
		}
	}
	sort.Strings(out)
	return out
}

// Locate returns the index entry for id.
func (s *Store) Locate(id string) (IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[id]
	return entry, ok
}

// GlobalHistory returns the cross-note summaries, most recent first.
func (s *Store) GlobalHistory() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Summary(nil), s.sec.global...)
}

// Conversation returns the legacy single-thread record of notePath.
func (s *Store) Conversation(notePath string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sec.conversations[notePath]
	c.History = append([]Message(nil), c.History...)
	return c, ok
}

// storeLocked writes d into the owning collection and refreshes both
// indices.
func (s *Store) storeLocked(d Discussion) {
	if d.NotePath == "" {
		s.sec.loose[d.ID] = d
		return
	}
	byID := s.sec.discussions[d.NotePath]
	if byID == nil {
		byID = map[string]Discussion{}
		s.sec.discussions[d.NotePath] = byID
	}
	byID[d.ID] = d
	ids := s.noteDiscussions[d.NotePath]
	if ids == nil {
		ids = map[string]struct{}{}
		s.noteDiscussions[d.NotePath] = ids
	}
	ids[d.ID] = struct{}{}
	s.index[d.ID] = IndexEntry{NotePath: d.NotePath, LastUpdated: d.LastUpdated}
}

func (s *Store) rebuildIndicesLocked() {
	s.noteDiscussions = map[string]map[string]struct{}{}
	s.index = map[string]IndexEntry{}
	for notePath, byID := range s.sec.discussions {
		ids := make(map[string]struct{}, len(byID))
		for id, d := range byID {
			ids[id] = struct{}{}
			s.index[id] = IndexEntry{NotePath: notePath, LastUpdated: d.LastUpdated}
		}
		s.noteDiscussions[notePath] = ids
	}
}

// upsertSummaryLocked moves the summary of d to the front of the global
// history and enforces its bound.
func (s *Store) upsertSummaryLocked(d Discussion) {
	summary := summarize(d)
	next := make([]Summary, 0, len(s.sec.global)+1)
	next = append(next, summary)
	for _, existing := range s.sec.global {
		if existing.ID != d.ID {
			next = append(next, existing)
		}
	}
	if len(next) > MaxGlobalHistory {
		next = next[:MaxGlobalHistory]
	}
	s.sec.global = next
}

func (s *Store) removeLocked(d Discussion) {
	if byID := s.sec.discussions[d.NotePath]; byID != nil {
		delete(byID, d.ID)
		if len(byID) == 0 {
			delete(s.sec.discussions, d.NotePath)
		}
	}
	delete(s.sec.loose, d.ID)
	if ids := s.noteDiscussions[d.NotePath]; ids != nil {
		delete(ids, d.ID)
		if len(ids) == 0 {
			delete(s.noteDiscussions, d.NotePath)
		}
	}
	delete(s.index, d.ID)
	kept := s.sec.global[:0]
	for _, summary := range s.sec.global {
		if summary.ID != d.ID {
			kept = append(kept, summary)
		}
	}
	s.sec.global = kept
}

// lookupLocked resolves id by note hint, then the id index, then a scan of
// every note, then the discussions stored without a note.
func (s *Store) lookupLocked(id, hint string) (Discussion, bool) {
	if hint != "" {
		if d, ok := s.sec.discussions[hint][id]; ok {
			return d, true
		}
	}
	if entry, ok := s.index[id]; ok {
		if d, ok := s.sec.discussions[entry.NotePath][id]; ok {
			return d, true
		}
	}
	notes := make([]string, 0, len(s.sec.discussions))
	for notePath := range s.sec.discussions {
		notes = append(notes, notePath)
	}
	sort.Strings(notes)
	for _, notePath := range notes {
		if d, ok := s.sec.discussions[notePath][id]; ok {
			return d, true
		}
	}
	if d, ok := s.sec.loose[id]; ok {
		return d, true
	}
	return Discussion{}, false
}

func indexOf(history []Message, id string) int {
	for i, m := range history {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func sortByRecency(list []Discussion) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastUpdated.Equal(list[j].LastUpdated) {
			return list[i].LastUpdated.After(list[j].LastUpdated)
		}
		return list[i].ID > list[j].ID
	})
}
