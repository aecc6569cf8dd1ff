package pdfcontext

import (
	"strings"
	"testing"
)

func TestChunksDeduplicateAndSkipBoilerplate(t *testing.T) {
	content := strings.Join([]string{
		"Abstract",
		"This is the abstract discussing the new method.",
		"References",
		"[1] Prior work with DOI:10.123/abc",
		"12 34 56 78 90",
		"This is the  abstract discussing the new method.",
		"The method relies on contrastive pretraining.",
	}, "\n\n")

	chunks := NewBuilder(0).Chunks(content)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 unique chunks, got %d: %#v", len(chunks), chunks)
	}
	if chunks[1].Start != chunks[0].End {
		t.Fatalf("offsets not contiguous: %#v", chunks)
	}
	out := NewBuilder(0).Build(content, "")
	if strings.Contains(out, "References") || strings.Contains(out, "DOI") {
		t.Fatalf("boilerplate kept: %q", out)
	}
	if strings.Count(out, "abstract discussing") != 1 {
		t.Fatalf("duplicate kept: %q", out)
	}
}

func TestBuildKeepsOrderWhenEverythingFits(t *testing.T) {
	content := "First paragraph about the setup.\n\nSecond paragraph with results."
	got := NewBuilder(1000).Build(content, "results")
	if got != content {
		t.Fatalf("Build = %q", got)
	}
}

func TestBuildPrefersParagraphsMatchingTheQuestion(t *testing.T) {
	content := strings.Join([]string{
		"We thank our colleagues for many helpful conversations over the years.",
		"Related systems have explored caching strategies in distributed stores.",
		"Our tokenizer splits words into byte pair units before embedding them.",
		"Closing remarks summarise the contribution and outline future plans.",
	}, "\n\n")
	budget := 80
	got := NewBuilder(budget).Build(content, "How does the tokenizer handle words?")
	if !strings.HasPrefix(got, "Our tokenizer splits words") {
		t.Fatalf("matching paragraph not kept first: %q", got)
	}
	if n := len([]rune(got)); n > budget {
		t.Fatalf("budget exceeded: %d > %d", n, budget)
	}
}

func TestBuildRespectsBudgetAndDocumentOrder(t *testing.T) {
	paragraphs := []string{
		"Alpha paragraph describes the dataset collection in detail.",
		"Bravo paragraph is unrelated filler text for this document.",
		"Charlie paragraph reports the evaluation results on the dataset.",
	}
	content := strings.Join(paragraphs, "\n\n")
	budget := len(paragraphs[0]) + len(paragraphs[2]) + 4
	got := NewBuilder(budget).Build(content, "dataset")
	if n := len([]rune(got)); n > budget {
		t.Fatalf("budget exceeded: %d > %d", n, budget)
	}
	alpha, charlie := strings.Index(got, "Alpha"), strings.Index(got, "Charlie")
	if alpha < 0 || charlie < 0 || alpha > charlie {
		t.Fatalf("expected alpha then charlie, got %q", got)
	}
	if strings.Contains(got, "Bravo") {
		t.Fatalf("unrelated paragraph kept: %q", got)
	}
}
