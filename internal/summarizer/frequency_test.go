package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mlText = `Machine learning is a subset of artificial intelligence. Machine learning systems learn patterns from data.
The weather was pleasant yesterday. Deep learning is a kind of machine learning based on neural networks`

func TestSentencesKeepsTrailingFragment(t *testing.T) {
	s := NewFrequencySummarizer()
	sents := s.Sentences(mlText)
	require.Len(t, sents, 4)
	assert.Equal(t, "Deep learning is a kind of machine learning based on neural networks", sents[3])
}

func TestSummarizeKeepsDocumentOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize(mlText, 2)
	require.NoError(t, err)
	assert.Contains(t, out, "Machine learning")
	assert.NotContains(t, out, "weather")
}

func TestSummarizeWithoutPunctuation(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("  just a fragment  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "just a fragment", out)
}

func TestKeyTerms(t *testing.T) {
	terms := NewFrequencySummarizer().KeyTerms(mlText, 2)
	assert.Equal(t, []string{"learning", "machine"}, terms)
}

func TestAnalyzeFallbackShape(t *testing.T) {
	a := NewFrequencySummarizer().Analyze(mlText, 2, 5)
	assert.NotEmpty(t, a.Summary)
	assert.Len(t, a.KeyTerms, 5)
	for _, kt := range a.KeyTerms {
		assert.Empty(t, kt.Definition)
	}
	assert.NotNil(t, a.QAPairs)
	assert.Empty(t, a.QAPairs)
}

func TestBestSentences(t *testing.T) {
	s := NewFrequencySummarizer()
	got := s.BestSentences("What is machine learning?", []string{mlText, "Cooking pasta takes ten minutes."}, 2)
	require.Len(t, got, 2)
	for _, sent := range got {
		assert.Contains(t, sent, "earning")
	}
	assert.Empty(t, s.BestSentences("quantum chromodynamics", []string{mlText}, 3))
}
