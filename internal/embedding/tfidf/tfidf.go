package tfidf

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"paperqa/internal/embedding"
)

// ModelName is pinned into index manifests built with this embedder.
const ModelName = "tfidf"

// Embedder implements a simple TF-IDF vectorizer.
// It builds a vocabulary from the corpus and computes IDF values.
// Dimension 0 is reserved for text with no known terms so that no
// produced vector is ever all zeros.
type Embedder struct {
	mu           sync.RWMutex
	vocabulary   map[string]int
	terms        []string
	idf          []float64
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		vocabulary:   make(map[string]int),
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return ModelName }

// Prepare builds the vocabulary and IDF values from the provided corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("%w: empty corpus for TF-IDF prepare", embedding.ErrEmptyInput)
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	n := float64(len(corpus))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		// smoothed IDF
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.install(terms, idf)
	return nil
}

func (e *Embedder) install(terms []string, idf []float64) {
	vocab := make(map[string]int, len(terms))
	for i, t := range terms {
		vocab[t] = i + 1
	}
	e.mu.Lock()
	e.terms = terms
	e.idf = idf
	e.vocabulary = vocab
	e.mu.Unlock()
}

// Dimension is the vocabulary size plus the reserved bucket, or 0 before Prepare.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.terms) == 0 {
		return 0
	}
	return len(e.terms) + 1
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embedding.ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text)
}

func (e *Embedder) embed(text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.terms) == 0 {
		return nil, embedding.ErrNotPrepared
	}
	vec := make([]float64, len(e.terms)+1)
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		vec[0] = 1
		return toFloat32(vec), nil
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * e.idf[idx-1]
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return toFloat32(vec), nil
}

// HasSignal reports whether vec came from text with at least one known term.
func (e *Embedder) HasSignal(vec []float32) bool {
	return len(vec) > 0 && vec[0] == 0
}

type state struct {
	Terms []string
	IDF   []float64
}

// MarshalState encodes the fitted vocabulary.
func (e *Embedder) MarshalState() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.terms) == 0 {
		return nil, embedding.ErrNotPrepared
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state{Terms: e.terms, IDF: e.idf}); err != nil {
		return nil, fmt.Errorf("encode tfidf state: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalState restores a vocabulary produced by MarshalState.
func (e *Embedder) UnmarshalState(data []byte) error {
	var s state
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode tfidf state: %w", err)
	}
	if len(s.Terms) == 0 || len(s.Terms) != len(s.IDF) {
		return errors.New("decode tfidf state: inconsistent vocabulary")
	}
	e.install(s.Terms, s.IDF)
	return nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did", "tell", "me", "explain",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
