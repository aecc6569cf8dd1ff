package tui

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeuxFois/papervault/internal/chat"
	"github.com/DeuxFois/papervault/internal/discussions"
	"github.com/DeuxFois/papervault/internal/papers"
	"github.com/DeuxFois/papervault/internal/vault"
)

const (
	switchTimeout  = 30 * time.Second
	saveTimeout    = 30 * time.Second
	rebuildTimeout = 2 * time.Minute
)

func switchNoteJob(panel *chat.Panel, notePath string) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, switchTimeout)
		defer cancel()
		err := panel.SwitchNote(ctx, notePath)
		return switchResultMsg{notePath: notePath, err: err}, err
	}
}

// replyJob waits for the LLM and routes the answer through the panel, which
// decides whether it lands in the live discussion or in the one that asked.
func replyJob(panel *chat.Panel, req *chat.Request) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		reply := req.Run()
		err := panel.Deliver(parent, reply)
		if err == nil && reply.Err != nil && !errors.Is(reply.Err, context.Canceled) {
			err = reply.Err
		}
		return replyResultMsg{reply: reply, err: err}, err
	}
}

func saveJob(store *discussions.Store) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, saveTimeout)
		defer cancel()
		err := store.SaveAll(ctx)
		return saveResultMsg{err: err}, err
	}
}

// deleteJob runs after the user confirmed, then opens a fresh discussion so
// the note keeps a live buffer.
func deleteJob(panel *chat.Panel, d discussions.Discussion) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, saveTimeout)
		defer cancel()
		confirmed := func(discussions.Summary) bool { return true }
		if err := panel.Store().DeleteDiscussion(ctx, d.ID, d.NotePath, confirmed); err != nil {
			return deleteResultMsg{title: d.Title, err: err}, err
		}
		if _, err := panel.NewDiscussion(ctx); err != nil && !errors.Is(err, chat.ErrNoActiveNote) {
			return deleteResultMsg{title: d.Title, err: err}, err
		}
		return deleteResultMsg{title: d.Title}, nil
	}
}

func newDiscussionJob(panel *chat.Panel) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, saveTimeout)
		defer cancel()
		d, err := panel.NewDiscussion(ctx)
		return newDiscussionMsg{discussion: d, err: err}, err
	}
}

func rebuildJob(index *papers.Synchronizer) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, rebuildTimeout)
		defer cancel()
		err := index.Rebuild(ctx)
		return rebuildResultMsg{err: err}, err
	}
}

// listen forwards one external message per call; Update re-arms it.
func listen(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// collectNotes lists managed papers first, sorted by sector then title, then
// every other note by path. The generated index note is left out.
func collectNotes(v *vault.Vault, index *papers.Synchronizer) ([]noteEntry, error) {
	var entries []noteEntry
	managed := map[string]bool{}
	indexPath := ""
	if index != nil {
		indexPath = index.IndexPath()
		for _, r := range index.Records() {
			managed[r.Path] = true
			entries = append(entries, noteEntry{
				Path:    r.Path,
				Label:   r.Title(),
				Sector:  r.Sector,
				Managed: true,
			})
		}
	}
	files, err := v.MarkdownFiles()
	if err != nil {
		return entries, err
	}
	var others []noteEntry
	for _, f := range files {
		if managed[f.Path] || f.Path == indexPath {
			continue
		}
		others = append(others, noteEntry{Path: f.Path, Label: f.Basename})
	}
	sort.SliceStable(others, func(i, j int) bool { return others[i].Path < others[j].Path })
	return append(entries, others...), nil
}

func trimmedLabel(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 1 || len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func lastMessageID(history []discussions.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsPlaceholder() {
			return history[i].ID
		}
	}
	return ""
}
