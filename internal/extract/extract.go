package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"knowledgehub/internal/domain"
)

// Func extracts plain text from raw file bytes.
type Func func(data []byte) (string, error)

var extractors = map[string]Func{
	"pdf":      PDF,
	"docx":     DOCX,
	"md":       Markdown,
	"markdown": Markdown,
	"txt":      Plain,
}

// FileType returns the lowercased extension of filename without the dot.
func FileType(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Supported reports whether filename has an extension with a registered extractor.
func Supported(filename string) bool {
	_, ok := extractors[FileType(filename)]
	return ok
}

// Text picks an extractor by the extension of filename.
func Text(filename string, data []byte) (string, error) {
	ext := FileType(filename)
	fn, ok := extractors[ext]
	if !ok {
		return "", &domain.UnsupportedFormatError{Extension: filepath.Ext(filename)}
	}
	out, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(filename), err)
	}
	return out, nil
}

// Plain decodes UTF-8 text, replacing invalid sequences and dropping a BOM.
func Plain(data []byte) (string, error) {
	s := strings.ToValidUTF8(string(data), "\uFFFD")
	return strings.TrimPrefix(s, "\uFEFF"), nil
}

// PDF concatenates the plain text of every page.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// DOCX reads word/document.xml and keeps run text, tabs, breaks and paragraph ends.
func DOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// Markdown walks the goldmark AST and keeps the readable text, dropping markup.
func Markdown(data []byte) (string, error) {
	src, _ := Plain(data)
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindCodeBlock, ast.KindFencedCodeBlock, ast.KindBlockquote:
				b.WriteString("\n\n")
			case ast.KindTextBlock, ast.KindListItem:
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(source))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
