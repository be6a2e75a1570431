package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"knowledgehub/internal/domain"
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]|[^.!?]+$)`),
		stopwords:       defaultStopwords(),
	}
}

// Sentences splits text into trimmed, non-empty sentences.
func (s *FrequencySummarizer) Sentences(text string) []string {
	raw := s.sentencePattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, sent := range raw {
		if t := strings.TrimSpace(sent); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Summarize returns a short summary by ranking sentences using token frequency.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := s.Sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}
	freq := s.frequencies(sentences)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		scores[i] = pair{i, s.score(s.tokens(sent), freq)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

// KeyTerms returns the n most frequent non-stopword terms, most frequent first.
func (s *FrequencySummarizer) KeyTerms(text string, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, tok := range s.tokens(text) {
		if _, stop := s.stopwords[tok]; stop || len([]rune(tok)) < 3 {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if n > len(order) {
		n = len(order)
	}
	return order[:n]
}

// Analyze builds an analysis without a language model: summary plus key
// terms without definitions, and no QA pairs.
func (s *FrequencySummarizer) Analyze(text string, maxSentences, maxTerms int) domain.Analysis {
	summary, _ := s.Summarize(text, maxSentences)
	terms := s.KeyTerms(text, maxTerms)
	a := domain.Analysis{
		Summary:  summary,
		KeyTerms: make([]domain.KeyTerm, 0, len(terms)),
		QAPairs:  []domain.QAPair{},
	}
	for _, t := range terms {
		a.KeyTerms = append(a.KeyTerms, domain.KeyTerm{Term: t})
	}
	return a
}

// BestSentences picks up to max sentences from texts sharing the most terms
// with query, in descending relevance. Sentences without any shared term are dropped.
func (s *FrequencySummarizer) BestSentences(query string, texts []string, max int) []string {
	want := map[string]struct{}{}
	for _, tok := range s.tokens(query) {
		if _, stop := s.stopwords[tok]; !stop {
			want[tok] = struct{}{}
		}
	}
	type cand struct {
		text  string
		score float64
	}
	var cands []cand
	seen := map[string]struct{}{}
	for _, text := range texts {
		for _, sent := range s.Sentences(text) {
			if _, dup := seen[sent]; dup {
				continue
			}
			seen[sent] = struct{}{}
			toks := s.tokens(sent)
			hits := 0.0
			for _, tok := range toks {
				if _, ok := want[tok]; ok {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			cands = append(cands, cand{sent, hits / math.Sqrt(float64(len(toks)))})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if max > len(cands) {
		max = len(cands)
	}
	out := make([]string, 0, max)
	for _, c := range cands[:max] {
		out = append(out, c.text)
	}
	return out
}

func (s *FrequencySummarizer) frequencies(sentences []string) map[string]float64 {
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

func (s *FrequencySummarizer) score(tokens []string, freq map[string]float64) float64 {
	sscore := 0.0
	for _, tok := range tokens {
		sscore += freq[tok]
	}
	// length normalization
	if l := float64(len(tokens)); l > 0 {
		sscore /= math.Sqrt(l)
	}
	return sscore
}

func (s *FrequencySummarizer) tokens(text string) []string {
	lower := strings.ToLower(text)
	return s.tokenPattern.FindAllString(lower, -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "its", "their", "they", "has", "have", "also",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
