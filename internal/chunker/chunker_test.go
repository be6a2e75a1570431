package chunker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
)

func reassemble(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		b.WriteString(string([]rune(c.Text)[overlap:]))
	}
	return b.String()
}

func TestProcessBytesWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks, err := ProcessBytes("flat.txt", []byte(text), 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1000, len(chunks[0].Text))
	assert.Equal(t, 1000, len(chunks[1].Text))
	assert.Equal(t, 900, len(chunks[2].Text))
	assert.Equal(t, []int{0, 800, 1600}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, text, reassemble(chunks, 200))
}

func TestChunksOverlapExactlyAndRoundTrip(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Machine learning models learn patterns from data. ")
		if i%7 == 6 {
			b.WriteString("\n\n")
		}
	}
	text := Normalize(b.String())

	c, err := New(Options{Size: 300, Overlap: 50})
	require.NoError(t, err)
	spans := c.Split(text)
	require.Greater(t, len(spans), 2)

	for i := 1; i < len(spans); i++ {
		prev := []rune(spans[i-1].Text)
		cur := []rune(spans[i].Text)
		assert.Equal(t, string(prev[len(prev)-50:]), string(cur[:50]), "chunk %d", i)
		assert.LessOrEqual(t, len(prev), 300)
	}

	var out strings.Builder
	for i, sp := range spans {
		if i == 0 {
			out.WriteString(sp.Text)
			continue
		}
		out.WriteString(string([]rune(sp.Text)[50:]))
	}
	assert.Equal(t, text, out.String())
}

func TestSplitPrefersSentenceEnd(t *testing.T) {
	c, err := New(Options{Size: 40, Overlap: 5, BoundaryWindow: 20})
	require.NoError(t, err)
	spans := c.Split("The first sentence is here. The second one follows after it.")
	require.NotEmpty(t, spans)
	assert.Equal(t, "The first sentence is here. ", spans[0].Text)
}

func TestSplitPrefersParagraph(t *testing.T) {
	c, err := New(Options{Size: 50, Overlap: 0, BoundaryWindow: 35})
	require.NoError(t, err)
	spans := c.Split("Heading line one.\n\nBody text. More body text follows here.")
	require.Len(t, spans, 2)
	assert.Equal(t, "Heading line one.\n\n", spans[0].Text)
}

func TestSplitHandlesMultibyteRunes(t *testing.T) {
	c, err := New(Options{Size: 10, Overlap: 3})
	require.NoError(t, err)
	text := strings.Repeat("é", 25)
	spans := c.Split(text)
	for _, sp := range spans {
		assert.LessOrEqual(t, len([]rune(sp.Text)), 10)
	}
	assert.Equal(t, 7, spans[1].Start)
}

func TestInvalidParameters(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {100, 100}, {100, 150}, {100, -1}} {
		_, err := ProcessBytes("a.txt", []byte("text"), tc.size, tc.overlap)
		assert.ErrorIs(t, err, domain.ErrConfiguration, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestUnsupportedExtension(t *testing.T) {
	_, err := ProcessBytes("image.png", []byte{0x89}, 100, 10)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestEmptyDocumentHasNoChunks(t *testing.T) {
	chunks, err := ProcessBytes("blank.txt", []byte(" \r\n\n\t"), 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestNormalize(t *testing.T) {
	in := "  line one  \r\nline two\r\n\r\n\r\n\r\nline three\t\n"
	assert.Equal(t, "line one\nline two\n\nline three", Normalize(in))
}

func TestProcessFileMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ML.txt")
	require.NoError(t, os.WriteFile(path, []byte("Machine learning is a subset of AI."), 0o644))

	chunks, err := ProcessFile(path, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, domain.DocumentID("ML.txt"), chunks[0].DocumentID)
	assert.Equal(t, "ML.txt", chunks[0].Filename)
	assert.Equal(t, "txt", chunks[0].FileType)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestContentAddressedIDs(t *testing.T) {
	c, err := New(Options{Size: 100, Overlap: 10, ContentAddressed: true})
	require.NoError(t, err)
	a, err := c.ProcessBytes("a.txt", []byte("same body"))
	require.NoError(t, err)
	b, err := c.ProcessBytes("b.txt", []byte("same body\n"))
	require.NoError(t, err)
	assert.Equal(t, a[0].DocumentID, b[0].DocumentID)
}
