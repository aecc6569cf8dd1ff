package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/vault"
)

const DefaultFolder = "Feeds"

// Indexer writes imported feeds as notes under one folder.
type Indexer struct {
	vault  *vault.Vault
	folder string
	logger *log.Logger
	now    func() time.Time
}

// ImportResult summarizes one import.
type ImportResult struct {
	NotePath string
	Items    int
	Skipped  []*ParseError
}

func NewIndexer(v *vault.Vault, folder string, logger *log.Logger) *Indexer {
	folder = vault.Clean(folder)
	if folder == "." {
		folder = DefaultFolder
	}
	return &Indexer{
		vault:  v,
		folder: folder,
		logger: logging.OrDiscard(logger).With("component", "feeds"),
		now:    time.Now,
	}
}

// Import parses r according to source's extension and writes
// `<folder>/<name>.md`, replacing an earlier import of the same name. An empty
// name falls back to the source's base name.
func (x *Indexer) Import(ctx context.Context, source, name string, r io.Reader) (ImportResult, error) {
	if name == "" {
		base := path.Base(strings.ReplaceAll(source, "\\", "/"))
		name = strings.TrimSuffix(base, path.Ext(base))
	}
	name = vault.SafeName(name)
	if name == "" {
		return ImportResult{}, errors.New("feed name is empty")
	}

	parsed, err := Parse(source, r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", source, err)
	}
	for _, skipped := range parsed.Skipped {
		x.logger.Warn("skipping feed row", "source", source, "line", skipped.Line, "err", skipped.Err)
	}
	if err := ctx.Err(); err != nil {
		return ImportResult{}, err
	}

	content, err := RenderFeedNote(name, path.Base(source), parsed.Items, x.now())
	if err != nil {
		return ImportResult{}, err
	}
	notePath := vault.Join(x.folder, name+".md")
	if _, err := x.vault.Write(notePath, content); err != nil {
		return ImportResult{}, err
	}
	x.logger.Info("feed imported", "note", notePath, "items", len(parsed.Items), "skipped", len(parsed.Skipped))
	return ImportResult{NotePath: notePath, Items: len(parsed.Items), Skipped: parsed.Skipped}, nil
}
