package discussions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/DeuxFois/papervault/internal/settings"
)

// sections is the decoded form of the three settings sections owned by this
// package.
type sections struct {
	discussions   map[string]map[string]Discussion
	loose         map[string]Discussion
	global        []Summary
	conversations map[string]Conversation
}

func newSections() sections {
	return sections{
		discussions:   map[string]map[string]Discussion{},
		loose:         map[string]Discussion{},
		conversations: map[string]Conversation{},
	}
}

type discussionRecord struct {
	ID                   string         `json:"id"`
	Title                string         `json:"title"`
	NotePath             string         `json:"notePath"`
	NoteName             string         `json:"noteName"`
	State                string         `json:"state"`
	History              []Message      `json:"history"`
	Messages             []Message      `json:"messages"`
	UserMessageHistory   []string       `json:"userMessageHistory"`
	IncludePDFInContext  *bool          `json:"includePdfInContext"`
	IncludeNoteInContext *bool          `json:"includeNoteInContext"`
	IncludedNotes        []IncludedNote `json:"includedNotes"`
	StartTime            any            `json:"startTime"`
	LastUpdated          any            `json:"lastUpdated"`
}

type summaryRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	NoteFile     string    `json:"noteFile"`
	NoteName     string    `json:"noteName"`
	StartTime    any       `json:"startTime"`
	LastUpdated  any       `json:"lastUpdated"`
	MessageCount int       `json:"messageCount"`
	LastMessages []Message `json:"lastMessages"`
}

type conversationRecord struct {
	History     []Message `json:"history"`
	LastUpdated any       `json:"lastUpdated"`
}

// decodeSections reads the discussion sections of doc. Older layouts are
// migrated: a flat id → discussion map, per-note arrays instead of maps,
// `messages` instead of `history`, and loosely typed timestamps. Records that
// cannot be decoded are skipped and reported in errs.
func decodeSections(doc settings.Document, now time.Time) (out sections, errs []error) {
	out = newSections()

	if len(doc.Discussions) > 0 {
		var top map[string]json.RawMessage
		if err := unmarshalLoose(doc.Discussions, &top); err != nil {
			errs = append(errs, fmt.Errorf("discussions: %w", err))
		}
		for key, raw := range top {
			errs = append(errs, out.decodeNoteEntry(key, raw, now)...)
		}
	}

	if len(doc.GlobalDiscussionHistory) > 0 {
		var records []summaryRecord
		if err := unmarshalLoose(doc.GlobalDiscussionHistory, &records); err != nil {
			errs = append(errs, fmt.Errorf("globalDiscussionHistory: %w", err))
		}
		for _, r := range records {
			if r.ID == "" {
				continue
			}
			out.global = append(out.global, Summary{
				ID:           r.ID,
				Title:        r.Title,
				NoteFile:     r.NoteFile,
				NoteName:     r.NoteName,
				StartTime:    NormalizeTimestamp(r.StartTime, now),
				LastUpdated:  NormalizeTimestamp(r.LastUpdated, now),
				MessageCount: r.MessageCount,
				LastMessages: normalizeHistory(r.LastMessages, now),
			})
		}
		if len(out.global) > MaxGlobalHistory {
			out.global = out.global[:MaxGlobalHistory]
		}
	}

	if len(doc.ChatConversations) > 0 {
		var top map[string]json.RawMessage
		if err := unmarshalLoose(doc.ChatConversations, &top); err != nil {
			errs = append(errs, fmt.Errorf("chatConversations: %w", err))
		}
		for notePath, raw := range top {
			conv, err := decodeConversation(raw, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("conversation %s: %w", notePath, err))
				continue
			}
			if len(conv.History) > 0 {
				out.conversations[notePath] = conv
			}
		}
	}
	return out, errs
}

func (s *sections) decodeNoteEntry(key string, raw json.RawMessage, now time.Time) []error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var records []discussionRecord
	switch trimmed[0] {
	case '[':
		if err := unmarshalLoose(trimmed, &records); err != nil {
			return []error{fmt.Errorf("discussions for %s: %w", key, err)}
		}
	case '{':
		var probe map[string]json.RawMessage
		if err := unmarshalLoose(trimmed, &probe); err != nil {
			return []error{fmt.Errorf("discussions for %s: %w", key, err)}
		}
		if looksLikeDiscussion(probe) {
			var r discussionRecord
			if err := unmarshalLoose(trimmed, &r); err != nil {
				return []error{fmt.Errorf("discussion %s: %w", key, err)}
			}
			if r.ID == "" {
				r.ID = key
			}
			records = append(records, r)
			key = ""
			break
		}
		ids := make([]string, 0, len(probe))
		for id := range probe {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			var r discussionRecord
			if err := unmarshalLoose(probe[id], &r); err != nil {
				return []error{fmt.Errorf("discussion %s: %w", id, err)}
			}
			if r.ID == "" {
				r.ID = id
			}
			records = append(records, r)
		}
	default:
		return []error{fmt.Errorf("discussions for %s: unexpected value", key)}
	}

	var errs []error
	for _, r := range records {
		d := r.toDiscussion(key, now)
		if len(d.History) == 0 {
			continue
		}
		if d.NotePath == "" {
			s.loose[d.ID] = d
			continue
		}
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("discussion %s: %w", d.ID, err))
			continue
		}
		if s.discussions[d.NotePath] == nil {
			s.discussions[d.NotePath] = map[string]Discussion{}
		}
		s.discussions[d.NotePath][d.ID] = d
	}
	return errs
}

// looksLikeDiscussion distinguishes a discussion record stored at the top
// level from a note's id → discussion map.
func looksLikeDiscussion(fields map[string]json.RawMessage) bool {
	for _, key := range []string{"history", "messages", "notePath"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func (r discussionRecord) toDiscussion(notePath string, now time.Time) Discussion {
	history := r.History
	if len(history) == 0 {
		history = r.Messages
	}
	history = normalizeHistory(history, now)

	if r.NotePath != "" {
		notePath = r.NotePath
	}
	d := Discussion{
		ID:                   r.ID,
		Title:                r.Title,
		NotePath:             notePath,
		NoteName:             r.NoteName,
		State:                StateSaved,
		History:              history,
		UserMessageHistory:   r.UserMessageHistory,
		IncludePDFInContext:  r.IncludePDFInContext == nil || *r.IncludePDFInContext,
		IncludeNoteInContext: r.IncludeNoteInContext == nil || *r.IncludeNoteInContext,
		IncludedNotes:        r.IncludedNotes,
		MessageCount:         len(history),
		StartTime:            NormalizeTimestamp(r.StartTime, now),
		LastUpdated:          NormalizeTimestamp(r.LastUpdated, now),
	}
	if d.NoteName == "" && notePath != "" {
		d.NoteName = noteName(notePath)
	}
	if d.Title == "" {
		d.Title = DeriveTitle(history, d.StartTime)
	}
	if len(d.UserMessageHistory) == 0 {
		for _, m := range history {
			if m.Role == RoleUser {
				d.UserMessageHistory = append(d.UserMessageHistory, m.Content)
			}
		}
	}
	return d
}

func decodeConversation(raw json.RawMessage, now time.Time) (Conversation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var history []Message
		if err := unmarshalLoose(trimmed, &history); err != nil {
			return Conversation{}, err
		}
		return Conversation{History: normalizeHistory(history, now), LastUpdated: now}, nil
	}
	var r conversationRecord
	if err := unmarshalLoose(trimmed, &r); err != nil {
		return Conversation{}, err
	}
	return Conversation{
		History:     normalizeHistory(r.History, now),
		LastUpdated: NormalizeTimestamp(r.LastUpdated, now),
	}, nil
}

// encodeSections writes the store's sections into doc. Discussions with an
// empty history are left out. Discussions without a note keep the flat
// top-level layout they were loaded from.
func encodeSections(doc *settings.Document, s sections) error {
	top := map[string]any{}
	for notePath, byID := range s.discussions {
		kept := map[string]Discussion{}
		for id, d := range byID {
			if len(d.History) > 0 {
				kept[id] = d
			}
		}
		if len(kept) > 0 {
			top[notePath] = kept
		}
	}
	for id, d := range s.loose {
		if _, taken := top[id]; !taken && len(d.History) > 0 {
			top[id] = d
		}
	}
	discussions, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("encode discussions: %w", err)
	}
	global := s.global
	if global == nil {
		global = []Summary{}
	}
	history, err := json.Marshal(global)
	if err != nil {
		return fmt.Errorf("encode global history: %w", err)
	}
	doc.Discussions = discussions
	doc.GlobalDiscussionHistory = history

	if len(s.conversations) > 0 {
		conversations, err := json.Marshal(s.conversations)
		if err != nil {
			return fmt.Errorf("encode conversations: %w", err)
		}
		doc.ChatConversations = conversations
	} else {
		doc.ChatConversations = nil
	}
	return nil
}

func unmarshalLoose(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
