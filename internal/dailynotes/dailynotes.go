// Package dailynotes lists and creates date-named notes in one vault folder.
package dailynotes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DeuxFois/papervault/internal/frontmatter"
	"github.com/DeuxFois/papervault/internal/vault"
)

const (
	DefaultFolder = "Daily"
	DefaultFormat = "2006-01-02"
)

// Note is a daily note and the date its name encodes.
type Note struct {
	Path string
	Name string
	Date time.Time
}

// List returns the markdown notes directly under folder whose base name parses
// with format, newest first. A missing folder yields no notes.
func List(v *vault.Vault, folder, format string) ([]Note, error) {
	folder, format = defaults(folder, format)
	files, _, err := v.ListFolder(folder)
	if err != nil {
		return nil, err
	}

	var notes []Note
	for _, f := range files {
		if !f.IsMarkdown() {
			continue
		}
		date, err := time.ParseInLocation(format, f.Basename, time.Local)
		if err != nil {
			continue
		}
		notes = append(notes, Note{Path: f.Path, Name: f.Basename, Date: date})
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].Date.Equal(notes[j].Date) {
			return notes[i].Date.After(notes[j].Date)
		}
		return notes[i].Name > notes[j].Name
	})
	return notes, nil
}

// Render writes notes as a markdown list of wiki links, one per line.
func Render(notes []Note) string {
	if len(notes) == 0 {
		return "_No daily notes._\n"
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "- [[%s|%s]] %s\n", strings.TrimSuffix(n.Path, ".md"), n.Name, n.Date.Format("Monday"))
	}
	return b.String()
}

// Today returns the path of the note for now, creating it when missing.
// created reports whether the note was written by this call.
func Today(v *vault.Vault, folder, format string, now time.Time) (notePath string, created bool, err error) {
	folder, format = defaults(folder, format)
	name := now.Format(format)
	if vault.SafeName(name) != name {
		return "", false, fmt.Errorf("date format %q produces an unusable note name %q", format, name)
	}
	notePath = vault.Join(folder, name+".md")
	if v.Exists(notePath) {
		return notePath, false, nil
	}

	var meta frontmatter.Map
	meta.Set("date", frontmatter.String(now.Format(DefaultFormat)))
	meta.Set("tags", frontmatter.List("daily"))
	content, err := frontmatter.Compose(meta, "# "+now.Format("Monday, January 2, 2006")+"\n\n")
	if err != nil {
		return "", false, err
	}
	if _, err := v.Create(notePath, content); err != nil {
		if v.Exists(notePath) {
			return notePath, false, nil
		}
		return "", false, err
	}
	return notePath, true, nil
}

func defaults(folder, format string) (string, string) {
	folder = vault.Clean(folder)
	if folder == "." || folder == "" {
		folder = DefaultFolder
	}
	if format == "" {
		format = DefaultFormat
	}
	return folder, format
}
