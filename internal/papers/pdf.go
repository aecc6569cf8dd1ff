package papers

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/DeuxFois/papervault/internal/arxiv"
	"github.com/DeuxFois/papervault/internal/vault"
)

type cachedText struct {
	pdfPath string
	mtime   time.Time
	text    string
}

// ResolvePDF maps the `pdf` frontmatter of r to a vault path. Wiki links
// (`[[file.pdf]]`, `[[file.pdf|alias]]`), vault paths and paths relative to
// the note are accepted; bare names fall back to a vault-wide basename match.
func (s *Synchronizer) ResolvePDF(r Record) (string, error) {
	ref := strings.TrimSpace(r.PDF())
	if ref == "" {
		return "", fmt.Errorf("%s has no pdf reference", r.Path)
	}
	ref = strings.TrimPrefix(ref, "!")
	if strings.HasPrefix(ref, "[[") && strings.HasSuffix(ref, "]]") {
		ref = strings.TrimSuffix(strings.TrimPrefix(ref, "[["), "]]")
		if i := strings.Index(ref, "|"); i >= 0 {
			ref = ref[:i]
		}
	}
	ref = strings.TrimSpace(ref)
	if !strings.HasSuffix(strings.ToLower(ref), ".pdf") {
		ref += ".pdf"
	}

	candidates := []string{vault.Join(path.Dir(r.Path), ref), vault.Clean(ref)}
	for _, candidate := range candidates {
		if _, err := s.vault.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	files, err := s.vault.Files()
	if err != nil {
		return "", err
	}
	name := path.Base(ref)
	for _, f := range files {
		if f.Name == name {
			return f.Path, nil
		}
	}
	return "", fmt.Errorf("pdf %q referenced by %s not found", ref, r.Path)
}

// PDFText extracts the text of r's PDF. Results are cached until the PDF
// changes.
func (s *Synchronizer) PDFText(ctx context.Context, r Record) (string, error) {
	pdfPath, err := s.ResolvePDF(r)
	if err != nil {
		return "", err
	}
	file, err := s.vault.Stat(pdfPath)
	if err != nil {
		return "", err
	}

	s.pdfMu.Lock()
	cached, ok := s.pdfTexts[r.Path]
	s.pdfMu.Unlock()
	if ok && cached.pdfPath == pdfPath && cached.mtime.Equal(file.Mtime) {
		return cached.text, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := s.vault.ReadBinary(pdfPath)
	if err != nil {
		return "", err
	}
	text, err := arxiv.ExtractText(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", pdfPath, err)
	}

	s.pdfMu.Lock()
	s.pdfTexts[r.Path] = cachedText{pdfPath: pdfPath, mtime: file.Mtime, text: text}
	s.pdfMu.Unlock()
	return text, nil
}

func (s *Synchronizer) forgetPDFText(notePath string) {
	s.pdfMu.Lock()
	delete(s.pdfTexts, notePath)
	s.pdfMu.Unlock()
}
