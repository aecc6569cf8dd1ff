package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DeuxFois/papervault/internal/frontmatter"
	"github.com/DeuxFois/papervault/internal/llm"
	"github.com/DeuxFois/papervault/internal/vault"
)

func TestParseCSVThenMarkdownTable(t *testing.T) {
	input := "title,url\n\"Hello\",\"http://x/1\"\n\"World\",\"http://x/2\"\n"
	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(result.Items) != 2 || len(result.Skipped) != 0 {
		t.Fatalf("expected 2 items and no skips, got %d / %d", len(result.Items), len(result.Skipped))
	}
	first := result.Items[0]
	if first.String("title") != "Hello" || first.String("url") != "http://x/1" {
		t.Fatalf("unexpected first item %v", first.Keys())
	}
	if result.Items[1].String("title") != "World" {
		t.Fatalf("items out of order")
	}

	want := "| Title | Url |\n" +
		"| --- | --- |\n" +
		"| Hello | http://x/1 |\n" +
		"| World | http://x/2 |\n"
	if got := MarkdownTable(result.Items); got != want {
		t.Fatalf("unexpected table:\n%s\nwant:\n%s", got, want)
	}
}

func TestMarkdownTableEscapesPipes(t *testing.T) {
	var item frontmatter.Map
	item.Set("title", frontmatter.String("a | b"))
	item.Set("notes", frontmatter.String("line one\nline two"))
	got := MarkdownTable([]frontmatter.Map{item})
	if !strings.Contains(got, `| a \| b | line one line two |`) {
		t.Fatalf("cells not escaped:\n%s", got)
	}
}

func TestMarkdownTableUnionOfColumns(t *testing.T) {
	var a, b frontmatter.Map
	a.Set("title", frontmatter.String("A"))
	b.Set("title", frontmatter.String("B"))
	b.Set("published_at", frontmatter.String("2024"))
	got := MarkdownTable([]frontmatter.Map{a, b})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if lines[0] != "| Title | Published At |" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[2] != "| A |  |" {
		t.Fatalf("missing cell not blank: %q", lines[2])
	}
	if MarkdownTable(nil) != "" {
		t.Fatalf("empty input should render nothing")
	}
}

func TestParseCSVSkipsRaggedRows(t *testing.T) {
	input := "Title, URL\nok,http://a\nbroken\n,\nlast,http://b\n"
	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Line != 3 {
		t.Fatalf("expected row 3 skipped, got %+v", result.Skipped)
	}
	if result.Items[1].String("url") != "http://b" {
		t.Fatalf("header keys should be lowercased, got %v", result.Items[1].Keys())
	}

	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		items int
		skips int
	}{
		{"array", `[{"url":"http://a","title":"A"},{"title":"B"}]`, 2, 0},
		{"wrapped", `{"items":[{"title":"A"},3,{"title":"C"}]}`, 2, 1},
		{"entries", `{"entries":[{"title":"A"}]}`, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseJSON(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseJSON returned error: %v", err)
			}
			if len(result.Items) != tt.items || len(result.Skipped) != tt.skips {
				t.Fatalf("got %d items / %d skips", len(result.Items), len(result.Skipped))
			}
		})
	}

	result, _ := ParseJSON(strings.NewReader(`[{"url":"http://a","title":"A"}]`))
	if keys := result.Items[0].Keys(); keys[0] != "url" || keys[1] != "title" {
		t.Fatalf("key order lost: %v", keys)
	}

	for _, bad := range []string{``, `"text"`, `{"other":[]}`, `[`} {
		if _, err := ParseJSON(strings.NewReader(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestIndexerImport(t *testing.T) {
	v, err := vault.NewMemory(nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	x := NewIndexer(v, "", nil)
	x.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	result, err := x.Import(context.Background(), "/tmp/exports/reading-list.csv", "", strings.NewReader("title,url\nHello,http://x/1\n"))
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.NotePath != "Feeds/reading-list.md" || result.Items != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	meta, body, err := v.Frontmatter(result.NotePath)
	if err != nil {
		t.Fatalf("Frontmatter: %v", err)
	}
	if meta.String("type") != "feed" || meta.String("source") != "reading-list.csv" || meta.String("items") != "1" {
		t.Fatalf("unexpected frontmatter %v", meta.Keys())
	}
	if meta.String("updated") != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected updated %q", meta.String("updated"))
	}
	if !strings.Contains(body, "| Hello | http://x/1 |") {
		t.Fatalf("table missing from body:\n%s", body)
	}

	if _, err := x.Import(context.Background(), "list.xml", "x", strings.NewReader("<x/>")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Name() string { return "stub" }

func (s stubLLM) Chat(ctx context.Context, messages []llm.Message, maxTokens int) (string, error) {
	return s.reply, s.err
}

const testPage = `<!doctype html>
<html><head><title>Fallback title</title><meta property="og:title" content="Attention Explained"></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h2>Intro</h2>
<p>Attention lets a model <strong>focus</strong>.</p>
<script>alert("x")</script>
<p><a href="/more" onclick="steal()">More</a></p>
</article>
<footer>footer text</footer>
</body></html>`

func TestClipperWritesBookmarkNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	v, err := vault.NewMemory(nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	c := NewClipper(v, "", srv.Client(), stubLLM{reply: "- attention focuses models"}, nil)

	result, err := c.Clip(context.Background(), srv.URL+"/post", ClipOptions{Summarize: true})
	if err != nil {
		t.Fatalf("Clip returned error: %v", err)
	}
	if result.Title != "Attention Explained" || result.NotePath != "Clippings/Attention Explained.md" {
		t.Fatalf("unexpected result %+v", result)
	}
	content, err := v.Read(result.NotePath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, want := range []string{"type: bookmark", "## Summary", "attention focuses models", "**focus**", "[More](" + srv.URL + "/more)"} {
		if !strings.Contains(content, want) {
			t.Fatalf("note missing %q:\n%s", want, content)
		}
	}
	for _, unwanted := range []string{"alert(", "onclick", "footer text", "Home"} {
		if strings.Contains(content, unwanted) {
			t.Fatalf("note should not contain %q:\n%s", unwanted, content)
		}
	}

	again, err := c.Clip(context.Background(), srv.URL+"/post", ClipOptions{})
	if err != nil {
		t.Fatalf("second Clip: %v", err)
	}
	if again.NotePath != "Clippings/Attention Explained (2).md" {
		t.Fatalf("expected a fresh note name, got %q", again.NotePath)
	}
}

func TestClipperKeepsNoteWhenLLMFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()
	v, _ := vault.NewMemory(nil)
	c := NewClipper(v, "Bookmarks", srv.Client(), stubLLM{err: errors.New("offline")}, nil)

	result, err := c.Clip(context.Background(), srv.URL, ClipOptions{Summarize: true, Extract: true})
	if err != nil {
		t.Fatalf("Clip returned error: %v", err)
	}
	if !strings.HasPrefix(result.NotePath, "Bookmarks/") || result.Summary != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClipperRejectsBadInput(t *testing.T) {
	v, _ := vault.NewMemory(nil)
	c := NewClipper(v, "", nil, nil, nil)
	if _, err := c.Clip(context.Background(), "ftp://example.com", ClipOptions{}); err == nil {
		t.Fatalf("expected invalid url error")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c = NewClipper(v, "", srv.Client(), nil, nil)
	if _, err := c.Clip(context.Background(), srv.URL, ClipOptions{}); err == nil {
		t.Fatalf("expected status error")
	}
}
