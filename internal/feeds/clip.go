package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/microcosm-cc/bluemonday"

	"github.com/DeuxFois/papervault/internal/frontmatter"
	"github.com/DeuxFois/papervault/internal/llm"
	"github.com/DeuxFois/papervault/internal/logging"
	"github.com/DeuxFois/papervault/internal/vault"
)

const (
	DefaultClipFolder = "Clippings"
	maxPageBytes      = 5 << 20
	clipUserAgent     = "papervault/1.0 (+https://github.com/DeuxFois/papervault)"
)

// contentSelectors are tried in order; the first match is the page body.
var contentSelectors = []string{"article", "main", "[role=main]", "#content", "body"}

const noiseSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe, svg"

// ClipOptions selects the optional LLM passes.
type ClipOptions struct {
	Summarize bool
	Extract   bool
}

// ClipResult describes a clipped page.
type ClipResult struct {
	NotePath string
	Title    string
	Summary  string
	Tags     []string
}

// Clipper saves web pages as bookmark notes.
type Clipper struct {
	vault      *vault.Vault
	folder     string
	httpClient *http.Client
	llm        llm.Client
	logger     *log.Logger
	policy     *bluemonday.Policy
	now        func() time.Time
}

// NewClipper returns a clipper writing under folder. client may be nil when no
// LLM pass is requested.
func NewClipper(v *vault.Vault, folder string, httpClient *http.Client, client llm.Client, logger *log.Logger) *Clipper {
	folder = vault.Clean(folder)
	if folder == "." {
		folder = DefaultClipFolder
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Clipper{
		vault:      v,
		folder:     folder,
		httpClient: httpClient,
		llm:        client,
		logger:     logging.OrDiscard(logger).With("component", "clipper"),
		policy:     bluemonday.UGCPolicy(),
		now:        time.Now,
	}
}

// Clip fetches pageURL, extracts its main content as markdown and writes a
// bookmark note. LLM failures are logged and the note is written without the
// LLM fields.
func (c *Clipper) Clip(ctx context.Context, pageURL string, opts ClipOptions) (ClipResult, error) {
	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ClipResult{}, fmt.Errorf("invalid url %q", pageURL)
	}

	page, err := c.fetch(ctx, parsed.String())
	if err != nil {
		return ClipResult{}, err
	}
	title, markdown, err := c.extract(page, parsed)
	if err != nil {
		return ClipResult{}, err
	}
	result := ClipResult{Title: title}

	var extraction llm.Extraction
	if c.llm != nil && (opts.Summarize || opts.Extract) {
		if opts.Summarize {
			summary, err := llm.Summarize(ctx, c.llm, title, markdown)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return ClipResult{}, err
				}
				c.logger.Warn("summary failed", "url", pageURL, "err", err)
			}
			result.Summary = summary
		}
		if opts.Extract {
			extraction, err = llm.Extract(ctx, c.llm, title, markdown)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return ClipResult{}, err
				}
				c.logger.Warn("extraction failed", "url", pageURL, "err", err)
			}
			result.Tags = extraction.Tags
		}
	}

	var meta frontmatter.Map
	meta.Set("type", frontmatter.String("bookmark"))
	meta.Set("title", frontmatter.String(title))
	meta.Set("url", frontmatter.String(parsed.String()))
	meta.Set("site", frontmatter.String(parsed.Hostname()))
	meta.Set("clipped", frontmatter.String(c.now().Format("2006-01-02")))
	if len(extraction.Authors) > 0 {
		meta.Set("authors", frontmatter.List(extraction.Authors...))
	}
	if len(result.Tags) > 0 {
		meta.Set("tags", frontmatter.List(result.Tags...))
	}

	var body strings.Builder
	body.WriteString("# " + title + "\n\n")
	if result.Summary != "" {
		body.WriteString("## Summary\n\n" + strings.TrimSpace(result.Summary) + "\n\n")
	} else if extraction.Summary != "" {
		body.WriteString("## Summary\n\n" + strings.TrimSpace(extraction.Summary) + "\n\n")
	}
	body.WriteString(strings.TrimSpace(markdown) + "\n")

	content, err := frontmatter.Compose(meta, body.String())
	if err != nil {
		return ClipResult{}, err
	}
	notePath, err := c.freePath(title)
	if err != nil {
		return ClipResult{}, err
	}
	if _, err := c.vault.Create(notePath, content); err != nil {
		return ClipResult{}, err
	}
	result.NotePath = notePath
	c.logger.Info("page clipped", "url", pageURL, "note", notePath)
	return result, nil
}

func (c *Clipper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", clipUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// extract returns the page title and its main content converted to markdown.
func (c *Clipper) extract(page []byte, base *url.URL) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = base.Hostname() + base.Path
	}
	title = strings.Join(strings.Fields(title), " ")

	doc.Find(noiseSelectors).Remove()
	var content *goquery.Selection
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			content = sel
			break
		}
	}
	if content == nil {
		return title, "", nil
	}
	html, err := content.Html()
	if err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}

	converter := md.NewConverter(base.Scheme+"://"+base.Host, true, nil)
	markdown, err := converter.ConvertString(c.policy.Sanitize(html))
	if err != nil {
		return "", "", fmt.Errorf("convert html: %w", err)
	}
	return title, markdown, nil
}

func (c *Clipper) freePath(title string) (string, error) {
	name := vault.SafeName(title)
	if name == "" {
		name = "Clipping " + c.now().Format("2006-01-02 150405")
	}
	candidate := vault.Join(c.folder, name+".md")
	for i := 2; c.vault.Exists(candidate); i++ {
		if i > 100 {
			return "", fmt.Errorf("no free note name for %q", title)
		}
		candidate = vault.Join(c.folder, fmt.Sprintf("%s (%d).md", name, i))
	}
	return candidate, nil
}
