package chunker

import (
	"regexp"
	"strings"

	"paperqa/internal/domain"
)

// sentenceEnd matches terminal punctuation followed by whitespace, or a blank line.
var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)|\n\s*\n`)

// SentenceChunker groups consecutive sentences into windows that share
// overlapSentences sentences with the previous window.
type SentenceChunker struct {
	perChunk int
	overlap  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	overlapSentences = max(0, min(overlapSentences, sentencesPerChunk-1))
	return &SentenceChunker{perChunk: sentencesPerChunk, overlap: overlapSentences}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := splitSentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	step := c.perChunk - c.overlap
	var texts []string
	for start := 0; ; start += step {
		end := min(start+c.perChunk, len(sentences))
		texts = append(texts, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return toChunks(document, texts), nil
}

// splitSentences keeps trailing text that lacks terminal punctuation.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.Join(strings.Fields(text[last:loc[1]]), " "); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.Join(strings.Fields(text[last:]), " "); s != "" {
		out = append(out, s)
	}
	return out
}
