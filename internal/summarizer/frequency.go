// Package summarizer produces a short extract of the knowledge base so
// operators can see what was ingested.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const DefaultMaxSentences = 3

var (
	sentencePattern = regexp.MustCompile(`[^.!?\n]+(?:[.!?]+|\n|$)`)
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Frequency picks the sentences whose content words are most frequent
// across the whole text. Selected sentences keep their original order.
type Frequency struct {
	maxSentences int
	stopwords    map[string]struct{}
}

func New(maxSentences int) *Frequency {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Frequency{maxSentences: maxSentences, stopwords: defaultStopwords()}
}

// Summarize joins texts and returns at most maxSentences sentences from them.
// Repeated sentences count once.
func (f *Frequency) Summarize(texts ...string) string {
	var sentences []string
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, s := range sentencePattern.FindAllString(t, -1) {
			s = strings.Join(strings.Fields(s), " ")
			if len(f.tokens(s)) == 0 {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			sentences = append(sentences, s)
		}
	}
	if len(sentences) <= f.maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, s := range sentences {
		for _, tok := range f.tokens(s) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, s := range sentences {
		toks := f.tokens(s)
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		scores[i] = scored{i, sum / math.Sqrt(float64(len(toks)))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	picked := make([]int, f.maxSentences)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)
	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

// tokens returns the lowercased content words of s.
func (f *Frequency) tokens(s string) []string {
	all := tokenPattern.FindAllString(strings.ToLower(s), -1)
	kept := all[:0]
	for _, t := range all {
		if _, stop := f.stopwords[t]; !stop {
			kept = append(kept, t)
		}
	}
	return kept
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "so", "such", "into", "about", "between", "through", "during",
		"before", "after", "out", "off", "too", "very", "can", "will", "just", "should", "now", "we", "you",
		"our", "your", "i", "me", "my", "do", "does", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
