package discussions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/DeuxFois/papervault/internal/settings"
)

// SaveCurrent commits the live buffer into the store and persists it. The
// commit happens at once; disk writes requested while one is running collapse
// into one follow-up write.
func (s *Store) SaveCurrent(ctx context.Context) error {
	s.mu.Lock()
	committed := s.current != nil && s.commitLocked()
	s.mu.Unlock()
	if !committed {
		return nil
	}
	return s.saver.Run(ctx)
}

// commitOutgoingLocked commits the live buffer before it is replaced.
func (s *Store) commitOutgoingLocked() bool {
	return s.current != nil && s.dirty && s.commitLocked()
}

// persistOutgoing writes a buffer committed by commitOutgoingLocked.
func (s *Store) persistOutgoing(ctx context.Context, committed bool) {
	if !committed {
		return
	}
	if err := s.saver.Run(ctx); err != nil {
		s.logger.Warn("saving previous discussion failed", "err", err)
	}
}

// commitLocked copies the live discussion into the owning collection.
// Placeholders are stripped, timestamps normalized, and messageCount
// recomputed. A discussion without messages is registered but not saved.
func (s *Store) commitLocked() bool {
	now := s.now()
	stored := s.current.Clone()
	stored.History = normalizeHistory(stored.History, now)
	stored.MessageCount = len(stored.History)
	if stored.MessageCount == 0 {
		stored.State = StateDraft
		s.storeLocked(stored)
		return false
	}
	stored.Title = DeriveTitle(stored.History, stored.StartTime)
	stored.LastUpdated = now
	stored.State = StateSaved
	s.storeLocked(stored)
	s.upsertSummaryLocked(stored)

	s.current.Title = stored.Title
	s.current.MessageCount = stored.MessageCount
	s.current.LastUpdated = now
	s.dirty = false
	return true
}

// SaveAll commits pending live changes and writes every section.
func (s *Store) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil && s.dirty {
		s.commitLocked()
	}
	s.mu.Unlock()
	return s.persister.Run(ctx)
}

// persist writes the discussion sections. Failures are logged and reported
// to Notify; the in-memory state is kept either way.
func (s *Store) persist(ctx context.Context, op string) error {
	err := s.backend.Update(ctx, func(doc *settings.Document) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return encodeSections(doc, s.sec)
	})
	if err == nil {
		s.logger.Debug("discussions saved", "op", op)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Info("save cancelled", "op", op)
		return err
	}
	perr := &PersistError{Op: op, Err: err}
	s.logger.Error("saving discussions failed", "op", op, "err", err)
	if s.notify != nil {
		s.notify(perr)
	}
	return perr
}

// LoadAll reads the settings document and merges it into memory. On an id
// collision the in-memory copy wins unless the policy is last-write-wins and
// the stored copy is newer. The live buffer is never replaced while it has
// unsaved changes.
func (s *Store) LoadAll(ctx context.Context) error {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load discussions: %w", err)
	}
	loaded, errs := decodeSections(doc, s.now())
	for _, err := range errs {
		s.logger.Warn("skipping stored discussion", "err", err)
	}

	s.mu.Lock()
	merged := 0
	for _, byID := range loaded.discussions {
		for _, d := range byID {
			if s.mergeLocked(d) {
				merged++
			}
		}
	}
	for _, d := range loaded.loose {
		if s.mergeLocked(d) {
			merged++
		}
	}
	for notePath, conv := range loaded.conversations {
		existing, ok := s.sec.conversations[notePath]
		if !ok || (s.policy == MergeLastWriteWins && conv.LastUpdated.After(existing.LastUpdated)) {
			s.sec.conversations[notePath] = conv
		}
	}
	s.sec.global = s.mergeGlobalLocked(loaded.global)
	s.rebuildIndicesLocked()
	s.mu.Unlock()

	s.logger.Info("discussions loaded", "merged", merged, "notes", len(loaded.discussions), "skipped", len(errs))
	s.changed()
	return nil
}

func (s *Store) mergeLocked(d Discussion) bool {
	existing, ok := s.existingLocked(d.ID)
	if ok {
		if s.policy != MergeLastWriteWins || !d.LastUpdated.After(existing.LastUpdated) {
			return false
		}
		if s.current != nil && s.current.ID == d.ID {
			if s.dirty {
				return false
			}
			live := d.Clone()
			live.State = StateActive
			s.current = &live
		}
		if existing.NotePath != d.NotePath {
			s.removeLocked(existing)
		}
	}
	s.storeLocked(d)
	return true
}

func (s *Store) existingLocked(id string) (Discussion, bool) {
	if entry, ok := s.index[id]; ok {
		if d, ok := s.sec.discussions[entry.NotePath][id]; ok {
			return d, true
		}
	}
	d, ok := s.sec.loose[id]
	return d, ok
}

func (s *Store) mergeGlobalLocked(loaded []Summary) []Summary {
	byID := make(map[string]Summary, len(s.sec.global)+len(loaded))
	for _, summary := range loaded {
		byID[summary.ID] = summary
	}
	for _, summary := range s.sec.global {
		stored, ok := byID[summary.ID]
		if ok && s.policy == MergeLastWriteWins && stored.LastUpdated.After(summary.LastUpdated) {
			continue
		}
		byID[summary.ID] = summary
	}
	out := make([]Summary, 0, len(byID))
	for _, summary := range byID {
		out = append(out, summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > MaxGlobalHistory {
		out = out[:MaxGlobalHistory]
	}
	return out
}

// LoadDiscussion makes a stored discussion the active one. notePathHint may be
// empty. Unsaved changes of the outgoing buffer are committed first.
func (s *Store) LoadDiscussion(ctx context.Context, id, notePathHint string) (Discussion, error) {
	s.mu.Lock()
	committed := s.commitOutgoingLocked()
	d, ok := s.lookupLocked(id, notePathHint)
	if !ok {
		s.mu.Unlock()
		s.persistOutgoing(ctx, committed)
		return Discussion{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	if d.NotePath == "" && notePathHint != "" {
		delete(s.sec.loose, d.ID)
		d.NotePath = notePathHint
		d.NoteName = noteName(notePathHint)
	}
	d.LastUpdated = now
	s.storeLocked(d)

	live := d.Clone()
	live.History = normalizeHistory(live.History, now)
	live.MessageCount = len(live.History)
	live.State = StateActive
	s.current = &live
	s.dirty = false
	s.recall = len(live.UserMessageHistory)
	s.clearUndoLocked()
	out := live.Clone()
	s.mu.Unlock()

	s.persistOutgoing(ctx, committed)
	s.logger.Debug("discussion loaded", "id", id, "note", out.NotePath, "messages", out.MessageCount)
	s.changed()
	return out, nil
}

// Latest returns the most recently updated discussion of notePath that has
// messages.
func (s *Store) Latest(notePath string) (Discussion, bool) {
	for _, d := range s.DiscussionsFor(notePath) {
		if len(d.History) > 0 {
			return d, true
		}
	}
	return Discussion{}, false
}

// Confirm is asked before a destructive action; returning false aborts it.
type Confirm func(Summary) bool

// DeleteDiscussion removes a discussion after confirm approves it. The live
// buffer is cleared only when the deleted discussion is the active one.
func (s *Store) DeleteDiscussion(ctx context.Context, id, notePathHint string, confirm Confirm) error {
	s.mu.Lock()
	d, ok := s.lookupLocked(id, notePathHint)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if confirm == nil || !confirm(summarize(d)) {
		return ErrNotConfirmed
	}

	s.mu.Lock()
	s.removeLocked(d)
	if s.current != nil && s.current.ID == id {
		s.current = nil
		s.dirty = false
		s.clearUndoLocked()
	}
	s.mu.Unlock()

	s.logger.Info("discussion deleted", "id", id, "note", d.NotePath)
	s.changed()
	return s.persister.Run(ctx)
}

// RouteOrphanedResponse stores a reply whose discussion is no longer the live
// one. The message is appended to the stored record of notePath, creating an
// "Orphaned discussion" when none exists, and persisted at once. An empty
// discussionID targets the note's legacy conversation record. The live buffer
// is never touched.
func (s *Store) RouteOrphanedResponse(ctx context.Context, notePath, discussionID string, msg Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	s.mu.Lock()
	s.routeOrphanLocked(notePath, discussionID, msg)
	s.mu.Unlock()

	s.logger.Info("routed orphaned response", "note", notePath, "discussion", discussionID)
	return s.persist(ctx, "orphan")
}

// DeliverReply settles the reply to a request made from discussionID. When
// that discussion is live, the placeholder is replaced, or the reply appended
// when a save or reload already dropped the placeholder. Otherwise the reply
// is routed to the stored discussion. The decision and the write happen under
// one lock, so a concurrent note switch cannot lose the reply. live reports
// which path was taken.
func (s *Store) DeliverReply(ctx context.Context, notePath, discussionID, placeholderID, content string) (live bool, err error) {
	if strings.TrimSpace(content) == "" {
		s.RemoveMessage(placeholderID)
		return s.isCurrent(discussionID), nil
	}
	s.mu.Lock()
	msg := Message{Role: RoleAssistant, Content: content}
	if s.resolvePlaceholderLocked(discussionID, placeholderID, msg) {
		s.mu.Unlock()
		s.changed()
		return true, s.SaveCurrent(ctx)
	}
	s.routeOrphanLocked(notePath, discussionID, msg)
	s.mu.Unlock()

	s.logger.Info("routed orphaned response", "note", notePath, "discussion", discussionID)
	return false, s.persist(ctx, "orphan")
}

// FailReply shows content in place of the placeholder when discussionID is
// still live. Failures of requests whose discussion was left are dropped.
func (s *Store) FailReply(ctx context.Context, discussionID, placeholderID, content string) (live bool, err error) {
	s.mu.Lock()
	live = s.resolvePlaceholderLocked(discussionID, placeholderID, Message{Role: RoleAssistant, Content: content})
	s.mu.Unlock()
	if !live {
		return false, nil
	}
	s.changed()
	return true, s.SaveCurrent(ctx)
}

func (s *Store) isCurrent(discussionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.ID == discussionID
}

func (s *Store) resolvePlaceholderLocked(discussionID, placeholderID string, msg Message) bool {
	if s.current == nil || s.current.ID != discussionID {
		return false
	}
	now := s.now()
	if i := indexOf(s.current.History, placeholderID); i >= 0 {
		s.current.History[i].Content = msg.Content
		s.current.History[i].IsTyping = false
		s.current.History[i].Timestamp = now
	} else {
		msg.ID = NewMessageID(now)
		msg.Timestamp = now
		s.current.History = appendDeduped(s.current.History, msg)
	}
	s.current.LastUpdated = now
	s.dirty = true
	return true
}

func (s *Store) routeOrphanLocked(notePath, discussionID string, msg Message) {
	now := s.now()
	if msg.ID == "" {
		msg.ID = NewMessageID(now)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Role = ParseRole(string(msg.Role))
	msg.IsTyping = false

	if discussionID == "" {
		conv := s.sec.conversations[notePath]
		conv.History = appendDeduped(conv.History, msg)
		conv.LastUpdated = now
		s.sec.conversations[notePath] = conv
		return
	}
	d, ok := s.sec.discussions[notePath][discussionID]
	if !ok {
		d = Discussion{
			ID:                   discussionID,
			Title:                orphanedTitle,
			NotePath:             notePath,
			NoteName:             noteName(notePath),
			IncludePDFInContext:  true,
			IncludeNoteInContext: true,
			StartTime:            now,
		}
	}
	d = d.Clone()
	d.History = appendDeduped(d.History, msg)
	d.MessageCount = len(d.History)
	d.State = StateSaved
	d.LastUpdated = now
	s.storeLocked(d)
	s.upsertSummaryLocked(d)
}

func appendDeduped(history []Message, msg Message) []Message {
	if n := len(history); n > 0 && msg.Role != RoleUser && history[n-1].sameAs(msg) {
		return history
	}
	return append(history, msg)
}
