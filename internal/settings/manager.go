package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hack-pad/hackpadfs"

	"github.com/DeuxFois/papervault/internal/logging"
)

// Manager owns the settings document on disk. Writes go to a temporary file
// that is renamed over the target.
type Manager struct {
	fs     hackpadfs.FS
	path   string
	logger *log.Logger

	mu  sync.Mutex
	doc Document
}

// NewManager returns a manager for the document at p inside fsys.
func NewManager(fsys hackpadfs.FS, p string, logger *log.Logger) *Manager {
	return &Manager{
		fs:     fsys,
		path:   p,
		logger: logging.OrDiscard(logger).With("component", "settings"),
		doc:    Default(),
	}
}

// Path returns the document location inside the filesystem.
func (m *Manager) Path() string { return m.path }

// Load reads the document. A missing or empty file yields Default.
func (m *Manager) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := hackpadfs.ReadFile(m.fs, m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Debug("settings file missing, using defaults", "path", m.path)
			m.set(Default())
			return Default(), nil
		}
		return Document{}, fmt.Errorf("read settings: %w", err)
	}
	doc := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("parse settings %s: %w", m.path, err)
		}
	}
	if doc.SchemaVersion < SchemaVersion {
		m.logger.Info("settings document predates current schema", "version", doc.SchemaVersion, "current", SchemaVersion)
	}
	m.set(doc)
	return doc.Clone(), nil
}

// Snapshot returns a copy of the last loaded or written document.
func (m *Manager) Snapshot() Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone()
}

// Update applies fn to a copy of the current document and persists it. The
// in-memory copy only changes when the write succeeds.
func (m *Manager) Update(ctx context.Context, fn func(*Document) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.SchemaVersion = SchemaVersion
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.write(next); err != nil {
		return err
	}
	m.doc = next
	return nil
}

func (m *Manager) write(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := path.Dir(m.path); dir != "." {
		if err := hackpadfs.MkdirAll(m.fs, dir, 0o755); err != nil {
			return fmt.Errorf("create settings folder: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := hackpadfs.WriteFullFile(m.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := hackpadfs.Rename(m.fs, tmp, m.path); err != nil {
		// some filesystems refuse to rename over an existing file
		if rmErr := hackpadfs.Remove(m.fs, m.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("replace settings: %w", err)
		}
		if err := hackpadfs.Rename(m.fs, tmp, m.path); err != nil {
			return fmt.Errorf("replace settings: %w", err)
		}
	}
	m.logger.Debug("settings saved", "path", m.path, "bytes", len(data))
	return nil
}

func (m *Manager) set(doc Document) {
	m.mu.Lock()
	m.doc = doc.Clone()
	m.mu.Unlock()
}
