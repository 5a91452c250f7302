package html

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// DocType is the type tag given to HTML documents.
const DocType = "html"

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts an HTML document to plain text.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", raw.URI, err)
	}

	title := extractTitle(doc)
	if title == "" {
		title = normalisers.TitleFromPath(raw.URI)
	}

	return &driven.NormaliseResult{
		Title:   title,
		Content: extractText(doc),
		DocType: DocType,
	}, nil
}

// removed lists elements whose content is never readable text.
const removed = "head, script, style, noscript, template, svg, iframe, object, canvas"

// blockElements are separated from their neighbours by a blank line.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "nav": true, "aside": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "dl": true, "table": true, "blockquote": true,
	"pre": true, "figure": true, "form": true, "fieldset": true, "address": true,
}

// lineElements start on a new line. The enclosing block closes the last one.
var lineElements = map[string]bool{
	"li": true, "tr": true, "dt": true, "dd": true, "figcaption": true, "caption": true,
}

var (
	whitespace    = regexp.MustCompile(`\s+`)
	multiSpaces   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the <title> text, else the first <h1>.
func extractTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapse(doc.Find("h1").First().Text())
}

// extractText walks the body and renders it as text.
func extractText(doc *goquery.Document) string {
	doc.Find(removed).Remove()

	var b strings.Builder
	walk(&b, doc.Find("body"))
	return tidy(b.String())
}

func walk(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(whitespace.ReplaceAllString(c.Text(), " "))
		case name == "#comment":
		case name == "br":
			b.WriteString("\n")
		case name == "pre":
			b.WriteString("\n\n")
			b.WriteString(c.Text())
			b.WriteString("\n\n")
		case name == "td" || name == "th":
			b.WriteString(" ")
			walk(b, c)
		case blockElements[name]:
			b.WriteString("\n\n")
			walk(b, c)
			b.WriteString("\n\n")
		case lineElements[name]:
			b.WriteString("\n")
			walk(b, c)
		default:
			walk(b, c)
		}
	})
}

// tidy trims every line and keeps at most one blank line between blocks.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripHTML renders an HTML fragment as text.
func stripHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	return extractText(doc)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
