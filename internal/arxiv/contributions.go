package arxiv

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxContributions = 4

var contributionWeights = map[string]int{
	"propose": 4, "introduce": 4, "present": 3, "demonstrate": 3, "show": 2,
	"evaluate": 2, "achieve": 3, "model": 2, "framework": 3, "method": 3,
	"state-of-the-art": 4, "outperform": 4, "improv": 2, "approach": 2,
	"architecture": 2, "pipeline": 2, "result": 1, "experiment": 1,
}

type scoredSentence struct {
	text  string
	score int
	idx   int
}

// extractKeyContributions ranks abstract sentences by contribution keywords
// and returns up to four of them, topping up with leading sentences when too
// few score.
func extractKeyContributions(abstract string) []string {
	if abstract == "" {
		return nil
	}
	sentences := splitSentences(abstract)
	if len(sentences) == 0 {
		return []string{abstract}
	}

	ranked := make([]scoredSentence, 0, len(sentences))
	for idx, sentence := range sentences {
		ranked = append(ranked, scoredSentence{text: sentence, score: scoreSentence(sentence, idx), idx: idx})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].idx < ranked[j].idx
		}
		return ranked[i].score > ranked[j].score
	})

	seen := map[string]bool{}
	var picked []string
	add := func(s string) {
		if !seen[s] && len(picked) < maxContributions {
			seen[s] = true
			picked = append(picked, s)
		}
	}
	for _, cand := range ranked {
		if cand.score <= 0 && len(picked) >= 2 {
			continue
		}
		add(cand.text)
	}
	if len(picked) < 3 {
		for _, sentence := range sentences {
			add(sentence)
		}
	}
	if len(picked) == 0 {
		return []string{abstract}
	}
	return picked
}

func scoreSentence(sentence string, idx int) int {
	lower := strings.ToLower(sentence)
	score := 0
	for keyword, weight := range contributionWeights {
		if strings.Contains(lower, keyword) {
			score += weight
		}
	}
	if strings.Contains(lower, "we ") || strings.Contains(lower, "our ") {
		score++
	}
	if idx == 0 {
		score++
	}
	if len(sentence) < 40 {
		score--
	}
	return score
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	var sentences []string
	start := 0
	for idx, r := range text {
		if idx < start || (r != '.' && r != '!' && r != '?') {
			continue
		}
		end := idx + utf8.RuneLen(r)
		if segment := strings.TrimSpace(text[start:end]); segment != "" {
			sentences = append(sentences, segment)
		}
		start = end
		for start < len(text) {
			next, size := utf8.DecodeRuneInString(text[start:])
			if !unicode.IsSpace(next) {
				break
			}
			start += size
		}
	}
	if start < len(text) {
		if segment := strings.TrimSpace(text[start:]); segment != "" {
			sentences = append(sentences, segment)
		}
	}
	return sentences
}
