// Package summarizer builds short extractive summaries of the corpus.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"paperqa/internal/domain"
)

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	tokenRe    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// maxSentenceRunes drops extraction noise such as tables flattened into one "sentence".
const maxSentenceRunes = 400

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords()}
}

// Summarize returns up to maxSentences of the highest scoring sentences in
// their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	var sentences []string
	for _, sent := range sentenceRe.FindAllString(text, -1) {
		sent = strings.Join(strings.Fields(sent), " ")
		if sent == "" || len([]rune(sent)) > maxSentenceRunes {
			continue
		}
		sentences = append(sentences, sent)
	}
	if len(sentences) == 0 {
		return strings.Join(strings.Fields(text), " "), nil
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / maxF
		}
		// length normalization keeps long sentences from winning by size alone
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	maxSentences = min(maxSentences, len(scores))

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// SummarizeDocuments renders one "Title: summary" line per document.
func SummarizeDocuments(s domain.Summarizer, docs []domain.Document, maxSentences int) (string, error) {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		sum, err := s.Summarize(d.Content, maxSentences)
		if err != nil {
			return "", err
		}
		lines = append(lines, d.Title+": "+sum)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *FrequencySummarizer) tokens(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := s.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "we", "our", "which",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
