package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Prompts are clipped well below typical local-model context windows
	// (roughly 4 chars/token).
	maxSummaryChars    = 60_000
	maxExtractionChars = 40_000
	summaryMaxTokens   = 512
	extractMaxTokens   = 512
)

const assistantSystemPrompt = "You are a concise research assistant."

// ClipText trims text and cuts it to at most limit runes.
func ClipText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Summarize asks client for a short bullet summary of text.
func Summarize(ctx context.Context, client Client, title, text string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("no llm client configured")
	}
	clipped := ClipText(text, maxSummaryChars)
	if clipped == "" {
		return "", fmt.Errorf("content empty; cannot summarize")
	}
	return client.Chat(ctx, []Message{
		{Role: RoleSystem, Content: assistantSystemPrompt},
		{Role: RoleUser, Content: buildSummaryPrompt(title, clipped)},
	}, summaryMaxTokens)
}

// Extraction is the structured data pulled from a clipped page.
type Extraction struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Authors []string `json:"authors"`
}

// Extract asks client for a JSON description of a page.
func Extract(ctx context.Context, client Client, title, text string) (Extraction, error) {
	if client == nil {
		return Extraction{}, fmt.Errorf("no llm client configured")
	}
	clipped := ClipText(text, maxExtractionChars)
	if clipped == "" {
		return Extraction{}, fmt.Errorf("content empty; cannot extract")
	}
	raw, err := client.Chat(ctx, []Message{
		{Role: RoleSystem, Content: assistantSystemPrompt},
		{Role: RoleUser, Content: buildExtractionPrompt(title, clipped)},
	}, extractMaxTokens)
	if err != nil {
		return Extraction{}, err
	}
	return parseExtraction(raw)
}

func buildSummaryPrompt(title, context string) string {
	if title == "" {
		title = "the document"
	}
	return "Write a concise 5-bullet summary covering the core problem, method, results, and limitations.\n" +
		"Each bullet should be <=20 words.\n\n" +
		"Title: " + title + "\n\n" +
		"Content:\n" + context
}

func buildExtractionPrompt(title, context string) string {
	if title == "" {
		title = "the page"
	}
	return fmt.Sprintf(
		"Read the page below and return ONLY JSON matching "+
			"{\"summary\":\"\",\"tags\":[\"\"],\"authors\":[\"\"]}.\n"+
			"summary: 2-3 sentences. tags: 3-6 lowercase keywords without '#'. authors: empty when unknown.\n\n"+
			"Title: %s\n\nContent:\n%s", title, context,
	)
}

func parseExtraction(raw string) (Extraction, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Extraction{}, fmt.Errorf("empty extraction response")
	}

	candidates := []string{raw}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	for _, candidate := range candidates {
		var out Extraction
		if err := json.Unmarshal([]byte(candidate), &out); err == nil && (out.Summary != "" || len(out.Tags) > 0) {
			return sanitizeExtraction(out), nil
		}
	}
	return Extraction{}, fmt.Errorf("unable to parse extraction payload")
}

func sanitizeExtraction(in Extraction) Extraction {
	out := Extraction{Summary: strings.TrimSpace(in.Summary)}
	for _, tag := range in.Tags {
		tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		tag = strings.Join(strings.Fields(tag), "-")
		if tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}
	for _, author := range in.Authors {
		if author = strings.TrimSpace(author); author != "" {
			out.Authors = append(out.Authors, author)
		}
	}
	return out
}
