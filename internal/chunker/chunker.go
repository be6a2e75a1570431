package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"knowledgehub/internal/domain"
	"knowledgehub/internal/extract"
)

// Options configures a Chunker. BoundaryWindow defaults to Size/5.
type Options struct {
	Size             int
	Overlap          int
	BoundaryWindow   int
	ContentAddressed bool
}

// Chunker splits extracted document text into overlapping, boundary-aligned chunks.
type Chunker struct {
	size             int
	overlap          int
	window           int
	contentAddressed bool
}

func New(opts Options) (*Chunker, error) {
	if opts.Size <= 0 {
		return nil, &domain.ConfigError{Field: "chunk_size", Reason: fmt.Sprintf("must be positive, got %d", opts.Size)}
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		return nil, &domain.ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be in [0, %d), got %d", opts.Size, opts.Overlap)}
	}
	window := opts.BoundaryWindow
	if window <= 0 {
		window = opts.Size / 5
	}
	return &Chunker{
		size:             opts.Size,
		overlap:          opts.Overlap,
		window:           window,
		contentAddressed: opts.ContentAddressed,
	}, nil
}

// ProcessFile reads path from disk and chunks it with the given size and overlap.
func ProcessFile(path string, size, overlap int) ([]domain.Chunk, error) {
	c, err := New(Options{Size: size, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return c.ProcessFile(path)
}

// ProcessBytes chunks an in-memory upload with the given size and overlap.
func ProcessBytes(filename string, data []byte, size, overlap int) ([]domain.Chunk, error) {
	c, err := New(Options{Size: size, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return c.ProcessBytes(filename, data)
}

func (c *Chunker) ProcessFile(path string) ([]domain.Chunk, error) {
	if !extract.Supported(path) {
		return nil, &domain.UnsupportedFormatError{Extension: filepath.Ext(path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.ProcessBytes(filepath.Base(path), data)
}

func (c *Chunker) ProcessBytes(filename string, data []byte) ([]domain.Chunk, error) {
	raw, err := extract.Text(filename, data)
	if err != nil {
		return nil, err
	}
	text := Normalize(raw)
	name := filepath.Base(filename)
	docID := domain.DocumentID(name)
	if c.contentAddressed {
		docID = domain.ContentDocumentID(text)
	}
	fileType := extract.FileType(name)

	spans := c.Split(text)
	chunks := make([]domain.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, domain.Chunk{
			DocumentID: docID,
			Filename:   name,
			FileType:   fileType,
			Text:       sp.Text,
			Start:      sp.Start,
			Index:      i,
			Size:       c.size,
			Overlap:    c.overlap,
		})
	}
	return chunks, nil
}

// Span is a piece of text with its rune offset in the source.
type Span struct {
	Start int
	Text  string
}

// Split cuts text into windows of at most size runes. Every window except the
// last ends on the latest natural boundary inside the tolerance window, and the
// next one starts exactly overlap runes before it ends.
func (c *Chunker) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	var spans []Span
	start := 0
	for {
		end := start + c.size
		if end >= n {
			spans = append(spans, Span{Start: start, Text: string(runes[start:n])})
			return spans
		}
		end = c.snap(runes, start, end)
		spans = append(spans, Span{Start: start, Text: string(runes[start:end])})
		start = end - c.overlap
	}
}

// snap moves end back to a boundary in (end-window, end], never producing a
// chunk of overlap runes or fewer.
func (c *Chunker) snap(runes []rune, start, end int) int {
	lo := end - c.window
	if floor := start + c.overlap + 1; lo < floor {
		lo = floor
	}
	if lo > end {
		return end
	}
	for _, isBoundary := range boundaries {
		for p := end; p >= lo; p-- {
			if isBoundary(runes, p) {
				return p
			}
		}
	}
	return end
}

// boundaries are tried in order; p is the exclusive end of the candidate chunk.
var boundaries = []func(runes []rune, p int) bool{
	// paragraph
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	// sentence
	func(r []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?", r[p-2])
	},
	// line
	func(r []rune, p int) bool { return p >= 1 && r[p-1] == '\n' },
	// word
	func(r []rune, p int) bool { return p >= 1 && unicode.IsSpace(r[p-1]) },
}

var (
	crlf       = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	blankLines = regexp.MustCompile(`\n{3,}`)
	trailingWS = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Normalize unifies line endings, strips trailing spaces and collapses runs of
// blank lines to a single one.
func Normalize(text string) string {
	text = crlf.Replace(text)
	text = trailingWS.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
