package arxiv

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hack-pad/hackpadfs"

	"github.com/DeuxFois/papervault/internal/logging"
)

const (
	cacheTTL           = 24 * time.Hour
	partialSuffix      = ".part"
	metaSuffix         = ".meta"
	defaultHTTPTimeout = 90 * time.Second
)

// PDFCache stores downloaded PDFs inside a filesystem folder. Fresh entries
// are served without a request; stale ones are revalidated with ETag /
// If-Modified-Since, and interrupted downloads resume with a Range request.
type PDFCache struct {
	fs     hackpadfs.FS
	dir    string
	client *http.Client
	logger *log.Logger
	now    func() time.Time
}

type pdfCacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"lastModified"`
	CachedAt     time.Time `json:"cachedAt"`
	Size         int64     `json:"size"`
}

// NewPDFCache keeps entries under dir in fsys.
func NewPDFCache(fsys hackpadfs.FS, dir string, client *http.Client, logger *log.Logger) *PDFCache {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &PDFCache{
		fs:     fsys,
		dir:    strings.Trim(dir, "/"),
		client: client,
		logger: logging.OrDiscard(logger).With("component", "pdfcache"),
		now:    time.Now,
	}
}

// Fetch returns the PDF at pdfURL. When the network fails and a stale copy
// exists, the stale copy is returned.
func (c *PDFCache) Fetch(ctx context.Context, pdfURL string) ([]byte, error) {
	if err := hackpadfs.MkdirAll(c.fs, c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pdf cache: %w", err)
	}
	pdfPath, metaPath, partialPath := c.pathsFor(cacheKey(pdfURL))

	meta, _ := c.readMeta(metaPath)
	current, _ := hackpadfs.ReadFile(c.fs, pdfPath)
	if len(current) > 0 && !meta.CachedAt.IsZero() && c.now().Sub(meta.CachedAt) < cacheTTL {
		c.logger.Debug("pdf cache hit", "url", pdfURL)
		return current, nil
	}

	data, err := c.download(ctx, pdfURL, pdfPath, metaPath, partialPath, meta, current)
	if err == nil {
		return data, nil
	}
	if len(current) > 0 && !errors.Is(err, context.Canceled) {
		c.logger.Warn("pdf refresh failed, serving stale copy", "url", pdfURL, "err", err)
		return current, nil
	}
	return nil, err
}

func (c *PDFCache) download(ctx context.Context, pdfURL, pdfPath, metaPath, partialPath string, meta pdfCacheMeta, current []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	partial, _ := hackpadfs.ReadFile(c.fs, partialPath)
	if len(partial) > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(partial)))
		if meta.ETag != "" {
			req.Header.Set("If-Range", meta.ETag)
		} else if meta.LastModified != "" {
			req.Header.Set("If-Range", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if len(current) > 0 {
			meta.CachedAt = c.now().UTC()
			if err := c.writeMeta(metaPath, meta); err != nil {
				c.logger.Warn("failed to refresh pdf cache metadata", "err", err)
			}
			return current, nil
		}
		return c.download(ctx, pdfURL, pdfPath, metaPath, partialPath, pdfCacheMeta{}, nil)
	case http.StatusOK:
		return c.saveBody(resp, pdfPath, metaPath, partialPath, nil)
	case http.StatusPartialContent:
		return c.saveBody(resp, pdfPath, metaPath, partialPath, partial)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pdf download failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
}

func (c *PDFCache) saveBody(resp *http.Response, pdfPath, metaPath, partialPath string, prefix []byte) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	data := append(append([]byte(nil), prefix...), body...)
	if err != nil {
		// keep what arrived so the next attempt can resume
		if len(data) > 0 {
			_ = hackpadfs.WriteFullFile(c.fs, partialPath, data, 0o644)
			_ = c.writeMeta(metaPath, pdfCacheMeta{
				URL:          resp.Request.URL.String(),
				ETag:         resp.Header.Get("Etag"),
				LastModified: resp.Header.Get("Last-Modified"),
			})
		}
		return nil, err
	}

	if err := hackpadfs.WriteFullFile(c.fs, pdfPath, data, 0o644); err != nil {
		return nil, err
	}
	if err := hackpadfs.Remove(c.fs, partialPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("failed to remove partial download", "path", partialPath, "err", err)
	}

	meta := pdfCacheMeta{
		URL:          resp.Request.URL.String(),
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		CachedAt:     c.now().UTC(),
		Size:         int64(len(data)),
	}
	if err := c.writeMeta(metaPath, meta); err != nil {
		return nil, err
	}
	c.logger.Debug("pdf cached", "url", meta.URL, "bytes", meta.Size)
	return data, nil
}

func (c *PDFCache) pathsFor(key string) (string, string, string) {
	base := path.Join(c.dir, key)
	return base + ".pdf", base + metaSuffix, base + partialSuffix
}

func cacheKey(pdfURL string) string {
	if id := ExtractIdentifier(pdfURL); id != "" && strings.Contains(strings.ToLower(pdfURL), "/pdf/") {
		return sanitizeKey(id)
	}
	sum := sha1.Sum([]byte(pdfURL))
	return hex.EncodeToString(sum[:])
}

func sanitizeKey(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, ":", "-")
	value = strings.ReplaceAll(value, "..", "-")
	return value
}

func (c *PDFCache) readMeta(p string) (pdfCacheMeta, error) {
	data, err := hackpadfs.ReadFile(c.fs, p)
	if err != nil {
		return pdfCacheMeta{}, err
	}
	var meta pdfCacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return pdfCacheMeta{}, err
	}
	return meta, nil
}

func (c *PDFCache) writeMeta(p string, meta pdfCacheMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return hackpadfs.WriteFullFile(c.fs, p, data, 0o644)
}
