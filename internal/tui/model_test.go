package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
)

type fakeAsker struct {
	answer domain.Answer
	err    error
	asked  []string
}

func (f *fakeAsker) Query(_ context.Context, q string, _ int, _ string) (domain.Answer, error) {
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestEnterAsksAndRendersSources(t *testing.T) {
	asker := &fakeAsker{answer: domain.Answer{
		Text: "Machine learning is a subset of AI. It learns from data",
		Sources: []domain.Source{
			{DocumentID: "a", Filename: "ml.txt", ChunkIndex: 0, Score: 0.91},
			{DocumentID: "b", Filename: "ai.md", ChunkIndex: 3, Score: 0.52},
		},
	}}
	var m tea.Model = New(context.Background(), asker, "banner", 3)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = typeText(m, "what is machine learning")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, "Thinking...", m.(Model).status)

	m, _ = m.Update(cmd())
	require.Equal(t, []string{"what is machine learning"}, asker.asked)
	model := m.(Model)
	assert.Equal(t, "Answered from 2 source(s).", model.status)
	out := model.renderAnswer()
	assert.Contains(t, out, "ml.txt")
	assert.Contains(t, out, "It learns from data")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.(Model).cursor)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, m.(Model).cursor)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.(Model).cursor)
}

func TestUngroundedAndErrorStatus(t *testing.T) {
	asker := &fakeAsker{answer: domain.Answer{Text: "No idea.", Sources: []domain.Source{}}}
	var m tea.Model = New(context.Background(), asker, "", 3)
	m, _ = m.Update(answerMsg{question: "q", answer: asker.answer})
	assert.Contains(t, m.(Model).status, "not grounded")
	assert.Contains(t, m.(Model).renderAnswer(), "Sources: none")

	m, _ = m.Update(answerMsg{question: "q", err: errors.New("boom")})
	assert.Equal(t, "Error: boom", m.(Model).status)
	assert.Equal(t, "No answer yet.", m.(Model).renderAnswer())
}

func TestHighlightBestSentenceKeepsAllText(t *testing.T) {
	text := "Bread needs yeast. Machine learning needs data. Trailing clause"
	out := highlightBestSentence(text, "machine learning")
	assert.Contains(t, out, "Bread needs yeast.")
	assert.Contains(t, out, "Machine learning needs data.")
	assert.True(t, strings.HasSuffix(out, "Trailing clause"))
}
