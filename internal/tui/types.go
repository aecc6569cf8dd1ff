package tui

import (
	"github.com/DeuxFois/papervault/internal/chat"
	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/vault"
)

type focusArea int

const (
	focusNotes focusArea = iota
	focusComposer
)

const heroTagline = "Talk to your papers."

const (
	minListWidth      = 20
	maxListWidth      = 40
	minChatWidth      = 30
	paneGap           = 3
	composerCharLimit = 4000
	notePreviewLimit  = 36
)

// noteEntry is one row of the note list.
type noteEntry struct {
	Path    string
	Label   string
	Sector  string
	Managed bool
}

// EventMsg carries a vault change into the program.
type EventMsg struct {
	Event vault.Event
}

// RebuildMsg reports a finished paper index rebuild.
type RebuildMsg struct {
	Result papers.RebuildResult
}

// StoreChangedMsg is sent after the live discussion changed outside Update.
type StoreChangedMsg struct{}

// NoticeMsg surfaces a background failure in the status line.
type NoticeMsg struct {
	Err error
}

type switchResultMsg struct {
	notePath string
	err      error
}

type replyResultMsg struct {
	reply chat.Reply
	err   error
}

type saveResultMsg struct {
	err error
}

type deleteResultMsg struct {
	title string
	err   error
}

type newDiscussionMsg struct {
	discussion discussions.Discussion
	err        error
}

type rebuildResultMsg struct {
	err error
}
