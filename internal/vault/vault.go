// Package vault exposes a folder of markdown notes and attachments over a
// hackpadfs filesystem and emits change events for every mutation made through
// it.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	osfs "github.com/hack-pad/hackpadfs/os"

	"github.com/DeuxFois/papervault/internal/frontmatter"
	"github.com/DeuxFois/papervault/internal/logging"
)

const (
	dirPerm  hackpadfs.FileMode = 0o755
	filePerm hackpadfs.FileMode = 0o644
)

// File describes a vault entry. Path is slash separated and relative to the
// vault root.
type File struct {
	Path     string
	Name     string
	Basename string
	Ext      string
	Mtime    time.Time
	Size     int64
}

// IsMarkdown reports whether the file is a note.
func (f File) IsMarkdown() bool { return f.Ext == "md" }

// Vault is safe for concurrent use. Subscribers are invoked synchronously, in
// registration order, on the goroutine that performed the mutation.
type Vault struct {
	fs     hackpadfs.FS
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]cachedMeta

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	order  []int
	nextID int
}

type cachedMeta struct {
	mtime time.Time
	size  int64
	meta  frontmatter.Map
	body  string
	err   error
}

// New wraps an existing filesystem.
func New(fsys hackpadfs.FS, logger *log.Logger) *Vault {
	return &Vault{
		fs:     fsys,
		logger: logging.OrDiscard(logger).With("component", "vault"),
		cache:  map[string]cachedMeta{},
		subs:   map[int]func(Event){},
	}
}

// Open roots a vault at dir on the host filesystem, creating it if needed.
func Open(dir string, logger *log.Logger) (*Vault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault dir: %w", err)
	}
	host := osfs.NewFS()
	rel, err := host.FromOSPath(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve vault dir: %w", err)
	}
	if err := hackpadfs.MkdirAll(host, rel, dirPerm); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	sub, err := host.Sub(rel)
	if err != nil {
		return nil, fmt.Errorf("open vault dir: %w", err)
	}
	return New(sub, logger), nil
}

// NewMemory returns a vault backed by an in-memory filesystem.
func NewMemory(logger *log.Logger) (*Vault, error) {
	fsys, err := mem.NewFS()
	if err != nil {
		return nil, err
	}
	return New(fsys, logger), nil
}

// FS exposes the underlying filesystem for components that manage files
// outside the note space (settings, caches).
func (v *Vault) FS() hackpadfs.FS { return v.fs }

// Subscribe registers fn for every event and returns a function removing it.
func (v *Vault) Subscribe(fn func(Event)) func() {
	v.subMu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.order = append(v.order, id)
	v.subMu.Unlock()

	return func() {
		v.subMu.Lock()
		defer v.subMu.Unlock()
		delete(v.subs, id)
		for i, existing := range v.order {
			if existing == id {
				v.order = append(v.order[:i], v.order[i+1:]...)
				break
			}
		}
	}
}

// Read returns a note's text.
func (v *Vault) Read(p string) (string, error) {
	data, err := v.ReadBinary(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBinary returns raw file contents.
func (v *Vault) ReadBinary(p string) ([]byte, error) {
	return hackpadfs.ReadFile(v.fs, Clean(p))
}

// Write replaces a file's text, creating parent folders. It emits create for
// new files, otherwise modify followed by metadata-changed.
func (v *Vault) Write(p, content string) (File, error) {
	return v.WriteBinary(p, []byte(content))
}

// WriteBinary is Write for raw bytes.
func (v *Vault) WriteBinary(p string, data []byte) (File, error) {
	p = Clean(p)
	if p == "." {
		return File{}, fmt.Errorf("write %q: invalid path", p)
	}
	existed := v.Exists(p)
	if dir := path.Dir(p); dir != "." {
		if err := hackpadfs.MkdirAll(v.fs, dir, dirPerm); err != nil {
			return File{}, fmt.Errorf("create folder %s: %w", dir, err)
		}
	}
	if err := hackpadfs.WriteFullFile(v.fs, p, data, filePerm); err != nil {
		return File{}, fmt.Errorf("write %s: %w", p, err)
	}
	v.invalidate(p)

	file, err := v.Stat(p)
	if err != nil {
		return File{}, err
	}
	if existed {
		v.emit(Event{Kind: EventModify, File: file})
		if file.IsMarkdown() {
			v.emit(Event{Kind: EventMetadataChanged, File: file})
		}
	} else {
		v.emit(Event{Kind: EventCreate, File: file})
	}
	return file, nil
}

// Create writes a new file and fails with fs.ErrExist when it is present.
func (v *Vault) Create(p, content string) (File, error) {
	if v.Exists(p) {
		return File{}, fmt.Errorf("create %s: %w", Clean(p), fs.ErrExist)
	}
	return v.Write(p, content)
}

// Delete removes a file and emits delete.
func (v *Vault) Delete(p string) error {
	p = Clean(p)
	file, err := v.Stat(p)
	if err != nil {
		return err
	}
	if err := hackpadfs.Remove(v.fs, p); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	v.invalidate(p)
	v.emit(Event{Kind: EventDelete, File: file})
	return nil
}

// Rename moves a file and emits rename carrying the old path.
func (v *Vault) Rename(oldPath, newPath string) (File, error) {
	oldPath, newPath = Clean(oldPath), Clean(newPath)
	if oldPath == newPath {
		return v.Stat(oldPath)
	}
	if v.Exists(newPath) {
		return File{}, fmt.Errorf("rename %s: %s: %w", oldPath, newPath, fs.ErrExist)
	}
	if dir := path.Dir(newPath); dir != "." {
		if err := hackpadfs.MkdirAll(v.fs, dir, dirPerm); err != nil {
			return File{}, fmt.Errorf("create folder %s: %w", dir, err)
		}
	}
	if err := hackpadfs.Rename(v.fs, oldPath, newPath); err != nil {
		return File{}, fmt.Errorf("rename %s: %w", oldPath, err)
	}
	v.invalidate(oldPath)
	v.invalidate(newPath)

	file, err := v.Stat(newPath)
	if err != nil {
		return File{}, err
	}
	v.emit(Event{Kind: EventRename, File: file, OldPath: oldPath})
	return file, nil
}

// Exists reports whether p names a file or folder.
func (v *Vault) Exists(p string) bool {
	_, err := hackpadfs.Stat(v.fs, Clean(p))
	return err == nil
}

// Stat describes the file at p.
func (v *Vault) Stat(p string) (File, error) {
	p = Clean(p)
	info, err := hackpadfs.Stat(v.fs, p)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("stat %s: is a folder", p)
	}
	return fileFromInfo(p, info), nil
}

// MkdirAll creates a folder and its parents.
func (v *Vault) MkdirAll(p string) error {
	return hackpadfs.MkdirAll(v.fs, Clean(p), dirPerm)
}

// Files lists every file in the vault sorted by path. Hidden folders such as
// `.papervault` are skipped.
func (v *Vault) Files() ([]File, error) {
	var files []File
	err := fs.WalkDir(v.fs, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if p != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			v.logger.Debug("skipping unreadable file", "path", p, "err", err)
			return nil
		}
		files = append(files, fileFromInfo(p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// MarkdownFiles lists every note.
func (v *Vault) MarkdownFiles() ([]File, error) {
	all, err := v.Files()
	if err != nil {
		return nil, err
	}
	notes := all[:0]
	for _, f := range all {
		if f.IsMarkdown() {
			notes = append(notes, f)
		}
	}
	return notes, nil
}

// ListFolder returns the direct children of a folder. A missing folder yields
// an empty list.
func (v *Vault) ListFolder(p string) (files []File, folders []string, err error) {
	p = Clean(p)
	entries, err := hackpadfs.ReadDir(v.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("list %s: %w", p, err)
	}
	for _, entry := range entries {
		child := Join(p, entry.Name())
		if entry.IsDir() {
			folders = append(folders, child)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileFromInfo(child, info))
	}
	return files, folders, nil
}

// Frontmatter returns the parsed frontmatter and body of a note, cached by
// modification time.
func (v *Vault) Frontmatter(p string) (frontmatter.Map, string, error) {
	p = Clean(p)
	info, err := hackpadfs.Stat(v.fs, p)
	if err != nil {
		return frontmatter.Map{}, "", err
	}

	v.mu.Lock()
	cached, ok := v.cache[p]
	v.mu.Unlock()
	if ok && cached.mtime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.meta.Clone(), cached.body, cached.err
	}

	content, err := v.Read(p)
	if err != nil {
		return frontmatter.Map{}, "", err
	}
	meta, body, parseErr := frontmatter.Parse(content)

	v.mu.Lock()
	v.cache[p] = cachedMeta{mtime: info.ModTime(), size: info.Size(), meta: meta, body: body, err: parseErr}
	v.mu.Unlock()
	return meta.Clone(), body, parseErr
}

func (v *Vault) invalidate(p string) {
	v.mu.Lock()
	delete(v.cache, p)
	v.mu.Unlock()
}

func (v *Vault) emit(ev Event) {
	v.subMu.RLock()
	handlers := make([]func(Event), 0, len(v.order))
	for _, id := range v.order {
		handlers = append(handlers, v.subs[id])
	}
	v.subMu.RUnlock()

	v.logger.Debug("vault event", "kind", ev.Kind, "path", ev.File.Path, "old", ev.OldPath)
	for _, fn := range handlers {
		fn(ev)
	}
}

func fileFromInfo(p string, info fs.FileInfo) File {
	name := path.Base(p)
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return File{
		Path:     p,
		Name:     name,
		Basename: strings.TrimSuffix(name, path.Ext(name)),
		Ext:      strings.ToLower(ext),
		Mtime:    info.ModTime(),
		Size:     info.Size(),
	}
}

// Clean normalizes a user supplied path into a vault path.
func Clean(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

// Join joins path elements into a vault path.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

const maxNameRunes = 120

var unsafeNameChars = regexp.MustCompile(`[\\/:*?"<>|#^\[\]]+`)

// SafeName turns a title into a usable note name: link-breaking characters
// become spaces, whitespace is collapsed and the result is capped in length.
func SafeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ". ")
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	return name
}
