// Package pdfcontext condenses text extracted from a PDF into the paragraphs
// worth sending to the LLM within a character budget.
package pdfcontext

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Chunk is one kept paragraph. Start and End are rune offsets into the
// condensed document.
type Chunk struct {
	ID    string
	Text  string
	Start int
	End   int
}

// Builder splits text into paragraphs, drops boilerplate and duplicates, and
// selects what fits the budget.
type Builder struct {
	budget int
}

var (
	paragraphSplit   = regexp.MustCompile(`\n{2,}`)
	whitespaceSanity = regexp.MustCompile(`\s+`)
	wordPattern      = regexp.MustCompile(`[\p{L}\p{N}]{4,}`)
)

// paperKeywords mark paragraphs about the method and results; they break
// ties when the question says little.
var paperKeywords = []string{
	"method", "architecture", "model", "training", "dataset", "evaluation",
	"experiment", "loss", "optimization", "baseline", "ablation", "result",
}

const (
	separator = "\n\n"
	// minPartial is the smallest truncated paragraph worth keeping.
	minPartial = 80
)

// NewBuilder returns a builder keeping at most budget runes. A budget of
// zero or less keeps everything.
func NewBuilder(budget int) *Builder {
	return &Builder{budget: budget}
}

// Chunks returns the unique, non-boilerplate paragraphs of content in
// document order.
func (b *Builder) Chunks(content string) []Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	seen := map[string]bool{}
	var chunks []Chunk
	cursor := 0
	for _, paragraph := range paragraphSplit.Split(content, -1) {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" || isBoilerplate(trimmed) {
			continue
		}
		hash := hashChunk(canonicalParagraph(trimmed))
		if seen[hash] {
			continue
		}
		seen[hash] = true
		length := runeLen(trimmed)
		chunks = append(chunks, Chunk{ID: hash, Text: trimmed, Start: cursor, End: cursor + length})
		cursor += length
	}
	return chunks
}

// Build returns the condensed text. When everything fits it is returned in
// document order; otherwise the paragraphs sharing the most words with query
// are kept first and then re-emitted in document order.
func (b *Builder) Build(content, query string) string {
	chunks := b.Chunks(content)
	if len(chunks) == 0 {
		return ""
	}
	if b.budget <= 0 || joinedLen(chunks) <= b.budget {
		return join(chunks)
	}

	terms := queryTerms(query)
	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{index: i, score: scoreChunk(c.Text, terms)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	remaining := b.budget
	picked := make([]bool, len(chunks))
	for _, r := range ranked {
		if cost := runeLen(chunks[r.index].Text) + runeLen(separator); cost <= remaining {
			picked[r.index] = true
			remaining -= cost
		}
	}
	// the best unpicked paragraph may fill what is left, truncated
	partial, room := -1, remaining-runeLen(separator)
	if room >= minPartial {
		for _, r := range ranked {
			if !picked[r.index] {
				partial = r.index
				break
			}
		}
	}

	var kept []Chunk
	for i, c := range chunks {
		switch {
		case picked[i]:
			kept = append(kept, c)
		case i == partial:
			c.Text = string([]rune(c.Text)[:room])
			kept = append(kept, c)
		}
	}
	return join(kept)
}

func queryTerms(query string) map[string]bool {
	terms := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		terms[w] = true
	}
	return terms
}

// scoreChunk weighs query words above generic paper vocabulary.
func scoreChunk(text string, terms map[string]bool) int {
	lower := strings.ToLower(text)
	score := 0
	for term := range terms {
		if strings.Contains(lower, term) {
			score += 3
		}
	}
	for _, keyword := range paperKeywords {
		if strings.Contains(lower, keyword) {
			score++
		}
	}
	return score
}

func canonicalParagraph(text string) string {
	return whitespaceSanity.ReplaceAllString(strings.TrimSpace(text), " ")
}

func isBoilerplate(paragraph string) bool {
	lower := strings.ToLower(strings.TrimSpace(paragraph))
	switch {
	case lower == "":
		return true
	case lower == "abstract", lower == "introduction", lower == "keywords":
		return true
	case strings.HasPrefix(lower, "references"), strings.HasPrefix(lower, "acknowledg"), strings.HasPrefix(lower, "copyright"):
		return true
	case strings.Contains(lower, "doi:"), strings.Contains(lower, "arxiv:"), strings.Contains(lower, "license"):
		return true
	}
	if runeLen(lower) <= 12 && !strings.Contains(lower, " ") {
		return true
	}
	alpha := 0
	for _, r := range lower {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	// page numbers, running figures and tables of digits
	return alpha*5 < runeLen(lower)
}

func hashChunk(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func join(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, separator)
}

func joinedLen(chunks []Chunk) int {
	n := 0
	for i, c := range chunks {
		if i > 0 {
			n += runeLen(separator)
		}
		n += runeLen(c.Text)
	}
	return n
}

func runeLen(text string) int {
	return len([]rune(text))
}
