package generator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/summarizer"
)

// Extractive answers offline by quoting the retrieved sentences that share the
// most terms with the question.
type Extractive struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
	analysis     AnalysisLimits
}

// AnalysisLimits bound the offline document analysis.
type AnalysisLimits struct {
	MaxSentences int
	MaxKeyTerms  int
}

func NewExtractive(maxSentences int, limits AnalysisLimits) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	if limits.MaxSentences <= 0 {
		limits.MaxSentences = 2
	}
	if limits.MaxKeyTerms <= 0 {
		limits.MaxKeyTerms = maxKeyTerms
	}
	return &Extractive{
		summarizer:   summarizer.NewFrequencySummarizer(),
		maxSentences: maxSentences,
		analysis:     limits,
	}
}

func (g *Extractive) Model() string { return "extractive" }

func (g *Extractive) Generate(ctx context.Context, question string, chunks []domain.SearchResult, _ string) (domain.Answer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Answer{}, domain.NewOpError(domain.ErrGeneration, "extract", "", err)
	}
	return domain.Answer{Text: g.answer(question, chunks), Model: g.Model()}, nil
}

func (g *Extractive) answer(question string, chunks []domain.SearchResult) string {
	if len(chunks) == 0 {
		return "I could not find anything about this in the knowledge base. " + NoContextMarker
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}
	best := g.summarizer.BestSentences(question, texts, g.maxSentences)
	if len(best) == 0 {
		summary, _ := g.summarizer.Summarize(texts[0], g.maxSentences)
		return fmt.Sprintf("The knowledge base does not answer this directly. The closest match (%s) says: %s", chunks[0].Chunk.Filename, summary)
	}
	return strings.Join(best, " ")
}

// Stream emits the extractive answer word by word.
func (g *Extractive) Stream(ctx context.Context, question string, chunks []domain.SearchResult, systemPrompt string) (*Stream, error) {
	ans, err := g.Generate(ctx, question, chunks, systemPrompt)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(ans.Text, " ")
	i := 0
	next := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", domain.NewOpError(domain.ErrGeneration, "extract", "", err)
		}
		if i >= len(words) {
			return "", io.EOF
		}
		w := words[i]
		i++
		return w, nil
	}
	return newStream(next, nil), nil
}

func (g *Extractive) Analyze(_ context.Context, text string, maxChars int) (domain.Analysis, error) {
	return g.summarizer.Analyze(truncateRunes(text, maxChars), g.analysis.MaxSentences, g.analysis.MaxKeyTerms), nil
}
