package papers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/jobs"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/vault"
)

const (
	DefaultRoot         = "Papers"
	DefaultIndexFile    = "_Paper Index.md"
	DefaultRebuildDelay = 2 * time.Second
	managedExt          = "md"
	reservedPrefix      = "_"
)

// Options configures a Synchronizer.
type Options struct {
	Root         string
	IndexFile    string
	RebuildDelay time.Duration
	// OnRebuild is called after every completed rebuild.
	OnRebuild func(RebuildResult)
}

// RebuildResult summarizes one rebuild.
type RebuildResult struct {
	Papers    int
	Sectors   int
	IndexPath string
	Written   bool
	Duration  time.Duration
	Err       error
}

// Synchronizer keeps a path → Record map consistent with vault events. The
// incremental handlers keep the map fresh between rebuilds; BuildFullIndex is
// the only operation that guarantees consistency with the vault.
type Synchronizer struct {
	vault     *vault.Vault
	root      string
	indexPath string
	logger    *log.Logger
	onRebuild func(RebuildResult)

	mu      sync.RWMutex
	records map[string]Record

	debouncer *jobs.Debouncer
	rebuilder *jobs.Coalescer

	pdfMu    sync.Mutex
	pdfTexts map[string]cachedText
}

// NewSynchronizer returns a synchronizer over v. Call BuildFullIndex (or
// Rebuild) once at startup.
func NewSynchronizer(v *vault.Vault, opts Options, logger *log.Logger) *Synchronizer {
	root := strings.Trim(vault.Clean(opts.Root), "/")
	if root == "" || root == "." {
		root = DefaultRoot
	}
	indexFile := opts.IndexFile
	if indexFile == "" {
		indexFile = DefaultIndexFile
	}
	delay := opts.RebuildDelay
	if delay <= 0 {
		delay = DefaultRebuildDelay
	}

	s := &Synchronizer{
		vault:     v,
		root:      root,
		indexPath: vault.Join(root, indexFile),
		logger:    logging.OrDiscard(logger).With("component", "papers"),
		onRebuild: opts.OnRebuild,
		records:   map[string]Record{},
		debouncer: jobs.NewDebouncer(delay),
		pdfTexts:  map[string]cachedText{},
	}
	s.rebuilder = jobs.NewCoalescer("rebuild", s.rebuild, logger)
	return s
}

// Root returns the managed folder.
func (s *Synchronizer) Root() string { return s.root }

// IndexPath returns the generated index note.
func (s *Synchronizer) IndexPath() string { return s.indexPath }

// IsManaged reports whether f is a paper note: under the root folder, not
// prefixed with `_`, and a markdown file.
func (s *Synchronizer) IsManaged(f vault.File) bool {
	if !strings.HasPrefix(f.Path, s.root+"/") {
		return false
	}
	if strings.HasPrefix(f.Name, reservedPrefix) {
		return false
	}
	return f.Ext == managedExt
}

// Parse builds the record for f. ok is false for unmanaged files and for
// notes whose frontmatter cannot be read.
func (s *Synchronizer) Parse(f vault.File) (Record, bool) {
	if !s.IsManaged(f) {
		return Record{}, false
	}
	meta, _, err := s.vault.Frontmatter(f.Path)
	if err != nil {
		s.logger.Debug("excluding unparseable note", "path", f.Path, "err", err)
		return Record{}, false
	}
	return Record{
		Path:        f.Path,
		Basename:    f.Basename,
		Mtime:       f.Mtime,
		Frontmatter: meta,
		Sector:      s.sectorFor(f.Path),
	}, true
}

func (s *Synchronizer) sectorFor(p string) string {
	rest := strings.TrimPrefix(p, s.root+"/")
	segments := strings.Split(rest, "/")
	if len(segments) < 2 || segments[0] == "" {
		return DefaultSector
	}
	return segments[0]
}

// OnCreate indexes a new managed note.
func (s *Synchronizer) OnCreate(f vault.File) {
	record, ok := s.Parse(f)
	if !ok {
		return
	}
	s.mu.Lock()
	s.records[record.Path] = record
	s.mu.Unlock()
	s.ScheduleRebuild()
}

// OnDelete drops a note from the index.
func (s *Synchronizer) OnDelete(f vault.File) {
	s.mu.Lock()
	_, present := s.records[f.Path]
	delete(s.records, f.Path)
	s.mu.Unlock()
	s.forgetPDFText(f.Path)
	if present {
		s.ScheduleRebuild()
	}
}

// OnRename moves an entry. A note moving into or out of the managed folder is
// added or dropped accordingly.
func (s *Synchronizer) OnRename(f vault.File, oldPath string) {
	record, ok := s.Parse(f)
	s.mu.Lock()
	delete(s.records, oldPath)
	if ok {
		s.records[record.Path] = record
	}
	s.mu.Unlock()
	s.forgetPDFText(oldPath)
	s.ScheduleRebuild()
}

// OnMetadataChange re-parses an indexed note.
func (s *Synchronizer) OnMetadataChange(f vault.File) {
	s.mu.RLock()
	_, present := s.records[f.Path]
	s.mu.RUnlock()
	if !present {
		return
	}
	record, ok := s.Parse(f)
	s.mu.Lock()
	if ok {
		s.records[f.Path] = record
	} else {
		delete(s.records, f.Path)
	}
	s.mu.Unlock()
	s.ScheduleRebuild()
}

// Handle routes a vault event to the matching handler.
func (s *Synchronizer) Handle(ev vault.Event) {
	switch ev.Kind {
	case vault.EventCreate:
		s.OnCreate(ev.File)
	case vault.EventDelete:
		s.OnDelete(ev.File)
	case vault.EventRename:
		s.OnRename(ev.File, ev.OldPath)
	case vault.EventMetadataChanged:
		s.OnMetadataChange(ev.File)
	}
}

// BuildFullIndex re-parses every note from scratch and replaces the map.
func (s *Synchronizer) BuildFullIndex() (int, error) {
	files, err := s.vault.MarkdownFiles()
	if err != nil {
		return 0, fmt.Errorf("list notes: %w", err)
	}
	next := make(map[string]Record, len(files))
	for _, f := range files {
		if record, ok := s.Parse(f); ok {
			next[record.Path] = record
		}
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return len(next), nil
}

// ScheduleRebuild requests a rebuild after the quiet period. Calls within the
// window reset the timer.
func (s *Synchronizer) ScheduleRebuild() {
	s.debouncer.Trigger(func() {
		if err := s.Rebuild(context.Background()); err != nil {
			s.logger.Error("scheduled rebuild failed", "path", s.indexPath, "err", err)
		}
	})
}

// RebuildPending reports whether a debounced rebuild is waiting.
func (s *Synchronizer) RebuildPending() bool { return s.debouncer.Pending() }

// FlushRebuild runs a pending debounced rebuild immediately.
func (s *Synchronizer) FlushRebuild() bool { return s.debouncer.Flush() }

// Stop cancels any pending rebuild.
func (s *Synchronizer) Stop() { s.debouncer.Stop() }

// Rebuild runs a full index pass and rewrites the index note. Concurrent
// calls collapse into at most one follow-up pass.
func (s *Synchronizer) Rebuild(ctx context.Context) error {
	return s.rebuilder.Run(ctx)
}

func (s *Synchronizer) rebuild(ctx context.Context) error {
	started := time.Now()
	result := RebuildResult{IndexPath: s.indexPath}
	defer func() {
		result.Duration = time.Since(started)
		if s.onRebuild != nil {
			s.onRebuild(result)
		}
	}()

	if _, err := s.BuildFullIndex(); err != nil {
		result.Err = err
		return err
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return err
	}
	records := s.Records()
	result.Papers = len(records)
	result.Sectors = len(groupBySector(records))

	content := RenderIndex(records)
	if existing, err := s.vault.Read(s.indexPath); err == nil && existing == content {
		return nil
	}
	if _, err := s.vault.Write(s.indexPath, content); err != nil {
		result.Err = err
		return fmt.Errorf("write paper index: %w", err)
	}
	result.Written = true
	s.logger.Info("paper index written", "path", s.indexPath, "papers", result.Papers, "sectors", result.Sectors)
	return nil
}

// Records returns a snapshot sorted by sector, then title.
func (s *Synchronizer) Records() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessRecord(out[i], out[j]) })
	return out
}

// Lookup returns the record at p.
func (s *Synchronizer) Lookup(p string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[vault.Clean(p)]
	return r, ok
}

// Len returns the number of indexed papers.
func (s *Synchronizer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
