package generator

import (
	"fmt"
	"strings"

	"knowledgehub/internal/domain"
)

// DefaultSystemPrompt is used when a query does not supply its own.
const DefaultSystemPrompt = `You are an AI research assistant with access to a knowledge base of research documents.

Your role is to:
1. Answer questions accurately based on the provided context
2. Cite sources when referencing specific information
3. Acknowledge when information is not in the provided context
4. Provide clear, well-structured responses

If the context doesn't contain relevant information to answer the question, say so clearly and provide what general knowledge you can while noting it's not from the knowledge base.`

// NoContextMarker replaces the context block when retrieval found nothing.
const NoContextMarker = "No relevant documents found in the knowledge base."

const analysisSystemPrompt = `You are an expert research analyst. Analyze the document and extract:
1. A concise summary (2 sentences max)
2. Top 5 key terms with brief definitions
3. 3 important question and answer pairs

Return ONLY valid JSON:
{
    "summary": "Brief summary...",
    "key_terms": [{"term": "Term", "definition": "Brief definition"}],
    "qa_pairs": [{"question": "Q?", "answer": "A"}]
}`

const (
	maxKeyTerms = 5
	maxQAPairs  = 3
	// completion budget when there is no context to ground an answer
	noContextMaxTokens = 300
)

// BuildContext renders retrieved chunks, each tagged with its source.
func BuildContext(chunks []domain.SearchResult) string {
	if len(chunks) == 0 {
		return NoContextMarker
	}
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("[Source %d: %s (chunk %d)]\n%s", i+1, c.Chunk.Filename, c.Chunk.Index, c.Chunk.Text))
	}
	return strings.Join(parts, "\n---\n")
}

// BuildUserMessage assembles the user turn sent with the system prompt.
func BuildUserMessage(question string, chunks []domain.SearchResult) string {
	return fmt.Sprintf(`Based on the following context from the knowledge base, please answer the question.

Context:
%s

Question: %s

Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information, acknowledge this limitation.`, BuildContext(chunks), question)
}

func systemPromptOr(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return DefaultSystemPrompt
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
