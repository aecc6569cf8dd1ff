// Package arxiv fetches paper metadata from the arXiv API, downloads PDFs
// through a conditional-request cache and extracts their text.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultAPIURL = "https://export.arxiv.org/api/query"
	DefaultPDFURL = "https://arxiv.org/pdf"
	DefaultAbsURL = "https://arxiv.org/abs"

	defaultAPITimeout = 10 * time.Second
)

// ErrNotFound is returned when the API has no entry for an identifier.
var ErrNotFound = errors.New("paper not found")

// Paper is the subset of arXiv metadata stored in a paper note.
type Paper struct {
	ID               string
	Title            string
	Authors          []string
	Abstract         string
	Subjects         []string
	KeyContributions []string
	Published        time.Time
	AbsURL           string
	PDFURL           string
}

// Year returns the publication year, or "" when unknown.
func (p Paper) Year() string {
	if p.Published.IsZero() {
		return ""
	}
	return p.Published.Format("2006")
}

// Client talks to the arXiv API. The zero value uses the public endpoints and
// downloads PDFs without caching.
type Client struct {
	BaseURL    string
	PDFBaseURL string
	HTTPClient *http.Client
	Cache      *PDFCache
}

var (
	idRegexp             = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf)/([0-9a-z.\-/]+?)(?:v\d+)?(?:\.pdf)?$`)
	bareIDRegexp         = regexp.MustCompile(`(?i)^[0-9a-z.\-/]+$`)
	extraneousWhitespace = regexp.MustCompile(`\s+`)
)

// FetchPaper looks up an arXiv URL or identifier.
func (c *Client) FetchPaper(ctx context.Context, input string) (*Paper, error) {
	id := ExtractIdentifier(input)
	if id == "" {
		return nil, fmt.Errorf("unable to extract arXiv identifier from %q", input)
	}

	endpoint := c.BaseURL
	if endpoint == "" {
		endpoint = DefaultAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?id_list="+url.QueryEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arxiv API error: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}

	entry, err := decodeEntry(resp.Body)
	if err != nil {
		return nil, err
	}
	if entry == nil || strings.TrimSpace(entry.Title) == "" {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return c.paperFromEntry(id, entry), nil
}

// DownloadPDF returns the PDF bytes of a paper, through the cache when one is
// configured.
func (c *Client) DownloadPDF(ctx context.Context, paper *Paper) ([]byte, error) {
	if paper == nil || paper.PDFURL == "" {
		return nil, errors.New("paper has no PDF URL")
	}
	if c.Cache != nil {
		return c.Cache.Fetch(ctx, paper.PDFURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paper.PDFURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pdf download failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) paperFromEntry(id string, entry *apiEntry) *Paper {
	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	subjects := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if term := strings.TrimSpace(cat.Term); term != "" {
			subjects = append(subjects, term)
		}
	}
	abstract := normalizeWhitespace(entry.Summary)
	published, _ := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published))

	pdfBase := c.PDFBaseURL
	if pdfBase == "" {
		pdfBase = DefaultPDFURL
	}
	return &Paper{
		ID:               id,
		Title:            normalizeWhitespace(entry.Title),
		Authors:          authors,
		Abstract:         abstract,
		Subjects:         subjects,
		KeyContributions: extractKeyContributions(abstract),
		Published:        published,
		AbsURL:           DefaultAbsURL + "/" + id,
		PDFURL:           strings.TrimRight(pdfBase, "/") + "/" + id + ".pdf",
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultAPITimeout}
}

// ExtractIdentifier accepts abs/pdf URLs, `arXiv:` prefixed and bare ids.
// Version suffixes are kept for bare ids.
func ExtractIdentifier(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(input), "arxiv.org/") {
		if matches := idRegexp.FindStringSubmatch(input); len(matches) > 1 {
			return matches[1]
		}
		return ""
	}
	if len(input) > 4 && strings.EqualFold(input[len(input)-4:], ".pdf") {
		input = input[:len(input)-4]
	}
	if len(input) >= len("arxiv:") && strings.EqualFold(input[:len("arxiv:")], "arxiv:") {
		input = strings.TrimSpace(input[len("arxiv:"):])
	}
	if bareIDRegexp.MatchString(input) && strings.ContainsAny(input, "0123456789") {
		return input
	}
	return ""
}

type apiFeed struct {
	Entries []apiEntry `xml:"entry"`
}

type apiEntry struct {
	ID         string        `xml:"id"`
	Title      string        `xml:"title"`
	Summary    string        `xml:"summary"`
	Published  string        `xml:"published"`
	Authors    []apiAuthor   `xml:"author"`
	Categories []apiCategory `xml:"category"`
}

type apiAuthor struct {
	Name string `xml:"name"`
}

type apiCategory struct {
	Term string `xml:"term,attr"`
}

func decodeEntry(reader io.Reader) (*apiEntry, error) {
	var feed apiFeed
	if err := xml.NewDecoder(reader).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode arxiv response: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, nil
	}
	return &feed.Entries[0], nil
}

func normalizeWhitespace(s string) string {
	return extraneousWhitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}
