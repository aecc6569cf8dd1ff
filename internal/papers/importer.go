package papers

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/arxiv"
	"github.com/DeuxFois/papervault/internal/frontmatter"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/vault"
)

// PaperSource is the arXiv lookup used by the importer.
type PaperSource interface {
	FetchPaper(ctx context.Context, input string) (*arxiv.Paper, error)
	DownloadPDF(ctx context.Context, paper *arxiv.Paper) ([]byte, error)
}

// Importer creates paper notes from arXiv.
type Importer struct {
	vault  *vault.Vault
	source PaperSource
	root   string
	logger *log.Logger
}

// ImportResult describes an import.
type ImportResult struct {
	Paper    *arxiv.Paper
	NotePath string
	PDFPath  string
	Created  bool
}

// NewImporter stores notes under root.
func NewImporter(v *vault.Vault, source PaperSource, root string, logger *log.Logger) *Importer {
	root = vault.Clean(root)
	if root == "." {
		root = DefaultRoot
	}
	return &Importer{
		vault:  v,
		source: source,
		root:   root,
		logger: logging.OrDiscard(logger).With("component", "importer"),
	}
}

// ImportArxiv fetches metadata for idOrURL, stores the PDF at
// `<root>/<sector>/<id>.pdf` and writes the paper note beside it. An existing
// note is left untouched and reported with Created false.
func (i *Importer) ImportArxiv(ctx context.Context, idOrURL, sector string) (ImportResult, error) {
	paper, err := i.source.FetchPaper(ctx, idOrURL)
	if err != nil {
		return ImportResult{}, err
	}

	folder := i.root
	if sector = vault.SafeName(sector); sector != "" {
		folder = vault.Join(i.root, sector)
	}
	name := vault.SafeName(paper.Title)
	if name == "" {
		name = vault.SafeName(paper.ID)
	}
	notePath := vault.Join(folder, name+".md")
	pdfName := strings.ReplaceAll(paper.ID, "/", "-") + ".pdf"
	pdfPath := vault.Join(folder, pdfName)
	result := ImportResult{Paper: paper, NotePath: notePath, PDFPath: pdfPath}

	if i.vault.Exists(notePath) {
		i.logger.Info("paper note already exists", "path", notePath)
		return result, nil
	}

	if !i.vault.Exists(pdfPath) {
		data, err := i.source.DownloadPDF(ctx, paper)
		if err != nil {
			return ImportResult{}, fmt.Errorf("download %s: %w", paper.ID, err)
		}
		if _, err := i.vault.WriteBinary(pdfPath, data); err != nil {
			return ImportResult{}, err
		}
	}

	content, err := RenderPaperNote(paper, pdfName)
	if err != nil {
		return ImportResult{}, err
	}
	if _, err := i.vault.Create(notePath, content); err != nil {
		return ImportResult{}, err
	}
	result.Created = true
	i.logger.Info("paper imported", "id", paper.ID, "note", notePath)
	return result, nil
}

// RenderPaperNote builds the note for an imported paper.
func RenderPaperNote(paper *arxiv.Paper, pdfName string) (string, error) {
	var meta frontmatter.Map
	meta.Set("title", frontmatter.String(paper.Title))
	meta.Set("authors", frontmatter.List(paper.Authors...))
	if year := paper.Year(); year != "" {
		meta.Set("year", frontmatter.String(year))
	}
	meta.Set("tags", frontmatter.List(paper.Subjects...))
	if pdfName != "" {
		meta.Set("pdf", frontmatter.String("[["+pdfName+"]]"))
	}
	meta.Set("arxiv", frontmatter.String(paper.ID))
	meta.Set("url", frontmatter.String(paper.AbsURL))

	var body strings.Builder
	body.WriteString("# " + paper.Title + "\n\n")
	body.WriteString("## Abstract\n\n")
	body.WriteString(paper.Abstract + "\n")
	if len(paper.KeyContributions) > 0 {
		body.WriteString("\n## Key contributions\n\n")
		for _, c := range paper.KeyContributions {
			body.WriteString("- " + c + "\n")
		}
	}
	renderGuide(&body, ReadingGuide(paper.Title, paper.Authors))
	return frontmatter.Compose(meta, body.String())
}
