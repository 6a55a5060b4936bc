package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Document is a Markdown report assembled section by section.
type Document struct {
	Title    string
	sections []section
}

type section struct {
	heading string
	body    string
}

// NewDocument returns an empty report with the given title.
func NewDocument(title string) *Document {
	return &Document{Title: title}
}

// AddSection appends a section.  The body is Markdown.
func (doc *Document) AddSection(heading, body string) *Document {
	doc.sections = append(doc.sections, section{heading, body})
	return doc
}

// AddText appends a section whose body is preformatted text, such as a
// model summary.
func (doc *Document) AddText(heading, text string) *Document {
	return doc.AddSection(heading, "```\n"+strings.TrimRight(text, "\n")+"\n```\n")
}

// Markdown renders the report as Markdown.
func (doc *Document) Markdown() string {

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", doc.Title)
	for _, s := range doc.sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s", s.heading, s.body)
		if !strings.HasSuffix(s.body, "\n") {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// HTML renders the report as a complete HTML page.
func (doc *Document) HTML() []byte {

	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: doc.Title,
	})

	return markdown.ToHTML([]byte(doc.Markdown()), p, r)
}

// WriteFiles writes the report to dir as <name>.md and <name>.html and
// returns the paths written.
func (doc *Document) WriteFiles(dir, name string) ([]string, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	mdPath := filepath.Join(dir, name+".md")
	if err := os.WriteFile(mdPath, []byte(doc.Markdown()), 0o644); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	htmlPath := filepath.Join(dir, name+".html")
	if err := os.WriteFile(htmlPath, doc.HTML(), 0o644); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	return []string{mdPath, htmlPath}, nil
}
