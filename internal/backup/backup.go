// Package backup lists and restores JSON snapshots of the settings document.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/settings"
	"github.com/DeuxFois/papervault/internal/vault"
)

// ErrInvalidBackup marks a backup that is not a settings document.
var ErrInvalidBackup = errors.New("invalid backup")

// Backup is one snapshot file.
type Backup struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Restorer copies backups from BackupDir over Target. Both are vault paths.
type Restorer struct {
	Vault     *vault.Vault
	BackupDir string
	Target    string
	Logger    *log.Logger

	now func() time.Time
}

// List returns the *.json files in BackupDir, newest first.
func (r *Restorer) List() ([]Backup, error) {
	files, _, err := r.Vault.ListFolder(r.BackupDir)
	if err != nil {
		return nil, err
	}
	var backups []Backup
	for _, f := range files {
		if f.Ext != "json" {
			continue
		}
		backups = append(backups, Backup{Name: f.Name, Path: f.Path, Size: f.Size, ModTime: f.Mtime})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// Snapshot copies the current target into BackupDir under a timestamped name.
func (r *Restorer) Snapshot() (Backup, error) {
	data, err := r.Vault.ReadBinary(r.Target)
	if err != nil {
		return Backup{}, fmt.Errorf("read %s: %w", r.Target, err)
	}
	name := "settings-" + r.clock().UTC().Format("20060102-150405") + ".json"
	file, err := r.Vault.WriteBinary(vault.Join(r.BackupDir, name), data)
	if err != nil {
		return Backup{}, err
	}
	r.logger().Info("backup written", "path", file.Path)
	return Backup{Name: file.Name, Path: file.Path, Size: file.Size, ModTime: file.Mtime}, nil
}

// Restore validates the named backup, keeps the current target as
// `<target>.bak` and writes the backup over the target.
func (r *Restorer) Restore(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name != path.Base(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidBackup, name)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		name += ".json"
	}
	source := vault.Join(r.BackupDir, name)
	data, err := r.Vault.ReadBinary(source)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", name, err)
	}
	if err := Validate(data); err != nil {
		return err
	}

	current, err := r.Vault.ReadBinary(r.Target)
	switch {
	case err == nil:
		if _, err := r.Vault.WriteBinary(r.Target+".bak", current); err != nil {
			return fmt.Errorf("keep current settings: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("read %s: %w", r.Target, err)
	}

	if _, err := r.Vault.WriteBinary(r.Target, data); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	r.logger().Info("backup restored", "backup", source, "target", r.Target)
	return nil
}

// Validate reports whether data decodes as a settings document.
func Validate(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: not a JSON object", ErrInvalidBackup)
	}
	var doc settings.Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return nil
}

func (r *Restorer) logger() *log.Logger {
	return logging.OrDiscard(r.Logger).With("component", "backup")
}

func (r *Restorer) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
