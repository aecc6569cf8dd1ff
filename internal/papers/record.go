// Package papers keeps an in-memory index of the paper notes under a managed
// folder in sync with vault events and renders it as a markdown table.
package papers

import (
	"strings"
	"time"

	"github.com/DeuxFois/papervault/internal/frontmatter"
)

// DefaultSector groups notes placed directly under the managed root.
const DefaultSector = "Other"

// Record is one indexed paper note. Records are values; the synchronizer
// replaces them wholesale.
type Record struct {
	Path        string
	Basename    string
	Mtime       time.Time
	Frontmatter frontmatter.Map
	Sector      string
}

// Title falls back to the note's basename.
func (r Record) Title() string {
	if title := r.Frontmatter.Title(); title != "" {
		return title
	}
	return r.Basename
}

func (r Record) Authors() []string { return r.Frontmatter.Authors() }
func (r Record) Year() string      { return r.Frontmatter.Year() }
func (r Record) Tags() []string    { return r.Frontmatter.Tags() }
func (r Record) PDF() string       { return r.Frontmatter.PDF() }

// Equal compares every field.
func (r Record) Equal(other Record) bool {
	return r.Path == other.Path &&
		r.Basename == other.Basename &&
		r.Mtime.Equal(other.Mtime) &&
		r.Sector == other.Sector &&
		r.Frontmatter.Equal(other.Frontmatter)
}

func lessRecord(a, b Record) bool {
	if a.Sector != b.Sector {
		return a.Sector < b.Sector
	}
	ta, tb := strings.ToLower(a.Title()), strings.ToLower(b.Title())
	if ta != tb {
		return ta < tb
	}
	return a.Path < b.Path
}
