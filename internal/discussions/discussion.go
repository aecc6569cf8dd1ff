package discussions

import (
	"fmt"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

type State string

const (
	StateDraft  State = "DRAFT"
	StateActive State = "ACTIVE"
	StateSaved  State = "SAVED"
)

// MaxGlobalHistory bounds the cross-note summary list.
const MaxGlobalHistory = 100

const (
	maxTitleRunes      = 50
	summaryMessages    = 3
	orphanedTitle      = "Orphaned discussion"
	discussionIDPrefix = "discussion_"
)

// IncludedNote is an extra file attached to a discussion's context.
type IncludedNote struct {
	Path             string `json:"path"`
	Name             string `json:"name"`
	Content          string `json:"content"`
	IncludeInContext bool   `json:"includeInContext"`
}

// Discussion is one chat thread scoped to a note.
type Discussion struct {
	ID                   string         `json:"id"`
	Title                string         `json:"title"`
	NotePath             string         `json:"notePath"`
	NoteName             string         `json:"noteName"`
	State                State          `json:"state"`
	History              []Message      `json:"history"`
	UserMessageHistory   []string       `json:"userMessageHistory,omitempty"`
	IncludePDFInContext  bool           `json:"includePdfInContext"`
	IncludeNoteInContext bool           `json:"includeNoteInContext"`
	IncludedNotes        []IncludedNote `json:"includedNotes,omitempty"`
	MessageCount         int            `json:"messageCount"`
	StartTime            time.Time      `json:"startTime"`
	LastUpdated          time.Time      `json:"lastUpdated"`
}

// Validate checks the fields a stored record must carry.
func (d Discussion) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.NotePath, validation.Required),
		validation.Field(&d.State, validation.In(StateDraft, StateActive, StateSaved)),
	)
}

// Clone returns a deep copy.
func (d Discussion) Clone() Discussion {
	d.History = append([]Message(nil), d.History...)
	d.UserMessageHistory = append([]string(nil), d.UserMessageHistory...)
	d.IncludedNotes = append([]IncludedNote(nil), d.IncludedNotes...)
	return d
}

// Summary is the lightweight entry kept in the global history.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	NoteFile     string    `json:"noteFile"`
	NoteName     string    `json:"noteName"`
	StartTime    time.Time `json:"startTime"`
	LastUpdated  time.Time `json:"lastUpdated"`
	MessageCount int       `json:"messageCount"`
	LastMessages []Message `json:"lastMessages,omitempty"`
}

func summarize(d Discussion) Summary {
	tail := d.History
	if len(tail) > summaryMessages {
		tail = tail[len(tail)-summaryMessages:]
	}
	return Summary{
		ID:           d.ID,
		Title:        d.Title,
		NoteFile:     d.NotePath,
		NoteName:     d.NoteName,
		StartTime:    d.StartTime,
		LastUpdated:  d.LastUpdated,
		MessageCount: len(d.History),
		LastMessages: append([]Message(nil), tail...),
	}
}

// Conversation is the legacy single-thread record kept per note.
type Conversation struct {
	History     []Message `json:"history"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewDiscussionID returns `discussion_<ms>_<random>`.
func NewDiscussionID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", discussionIDPrefix, now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// DeriveTitle uses the first user message, truncated, or a timestamp.
func DeriveTitle(history []Message, started time.Time) string {
	for _, m := range history {
		if m.Role != RoleUser || m.IsPlaceholder() {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if title == "" {
			continue
		}
		if runes := []rune(title); len(runes) > maxTitleRunes {
			title = string(runes[:maxTitleRunes-3]) + "..."
		}
		return title
	}
	return "Discussion " + started.Local().Format("2006-01-02 15:04")
}

func noteName(notePath string) string {
	return strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
}
