package chunker

import (
	"fmt"
	"strings"

	"paperqa/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	paragraphSeparator = "\n\n"
)

// CharacterChunker splits on paragraph breaks and merges the pieces into
// windows of at most size runes, repeating up to overlap runes of trailing
// pieces at the start of the next window.
type CharacterChunker struct {
	size    int
	overlap int
}

func NewCharacterChunker(size, overlap int) *CharacterChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &CharacterChunker{size: size, overlap: overlap}
}

func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var pieces []string
	for _, p := range strings.Split(document.Content, paragraphSeparator) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pieces = append(pieces, c.hardSplit(p)...)
	}
	return toChunks(document, c.merge(pieces)), nil
}

// hardSplit breaks a piece longer than size into windows with stride size-overlap.
func (c *CharacterChunker) hardSplit(piece string) []string {
	runes := []rune(piece)
	if len(runes) <= c.size {
		return []string{piece}
	}
	stride := c.size - c.overlap
	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}

func (c *CharacterChunker) merge(pieces []string) []string {
	sepLen := runeLen(paragraphSeparator)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(parts []string) int {
		n := 0
		for i, p := range parts {
			if i > 0 {
				n += sepLen
			}
			n += runeLen(p)
		}
		return n
	}
	for _, p := range pieces {
		pl := runeLen(p)
		extra := pl
		if len(current) > 0 {
			extra += sepLen
		}
		if len(current) > 0 && total+extra > c.size {
			out = append(out, strings.Join(current, paragraphSeparator))
			// keep trailing pieces that fit in the overlap and still leave room for p
			for len(current) > 0 {
				t := joinedLen(current)
				if t <= c.overlap && t+sepLen+pl <= c.size {
					break
				}
				current = current[1:]
			}
			total = joinedLen(current)
			extra = pl
			if len(current) > 0 {
				extra += sepLen
			}
		}
		current = append(current, p)
		total += extra
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, paragraphSeparator))
	}
	return out
}

func toChunks(document domain.Document, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    fmt.Sprintf("%s:%d", document.ID, idx),
			Source:     document.Path,
			Text:       t,
			Index:      idx,
		})
	}
	return chunks
}

func runeLen(s string) int { return len([]rune(s)) }
