package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

const abstract = `The dominant sequence transduction models are based on recurrent networks.
We propose the Transformer, based solely on attention mechanisms.
Attention mechanisms let the Transformer model long range dependencies.
The weather was nice.`

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize(abstract, 2)
	require.NoError(t, err)
	assert.Equal(t, "We propose the Transformer, based solely on attention mechanisms. "+
		"Attention mechanisms let the Transformer model long range dependencies.", out)
}

func TestSummarizeWithoutSentenceBreaks(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("  no   punctuation here ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no punctuation here", out)
}

func TestSummarizeDocuments(t *testing.T) {
	docs := []domain.Document{
		{Title: "attention", Content: abstract},
		{Title: "bert", Content: "BERT is bidirectional. It is pre-trained."},
	}
	out, err := SummarizeDocuments(NewFrequencySummarizer(), docs, 1)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "attention: "))
	assert.True(t, strings.HasPrefix(lines[1], "bert: "))
}
