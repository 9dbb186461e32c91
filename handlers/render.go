package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/niklasfasching/go-org/org"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// docPolicy is the bluemonday allowlist applied to every rendered document
// before it is embedded in a page. Dataset READMEs come straight off shared
// storage, so raw HTML in them is never trusted.
var docPolicy = buildDocPolicy()

func buildDocPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	// Structural and block elements.
	p.AllowElements(
		"blockquote", "br",
		"caption", "col", "colgroup",
		"details", "div", "dl", "dt", "dd",
		"figure", "figcaption",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"hr", "li", "ol", "p", "pre", "summary",
		"table", "tbody", "td", "tfoot", "th", "thead", "tr",
		"ul",
	)

	// Inline elements.
	p.AllowElements(
		"a", "abbr", "b", "cite", "code", "del", "em", "i", "kbd",
		"mark", "q", "s", "samp", "small", "span", "strong", "sub", "sup", "u", "var",
	)

	// Only http, https and mailto hrefs; relative anchors stay usable.
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)

	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowElements("img")

	// id and class are needed for heading anchors and the Chroma CSS classes
	// on highlighted code spans.
	p.AllowAttrs("id", "class", "lang", "title").Globally()
	p.AllowAttrs("align", "valign", "colspan", "rowspan", "scope", "headers").OnElements("td", "th")
	p.AllowAttrs("start", "type").OnElements("ol")
	p.AllowAttrs("cite").OnElements("blockquote", "del", "q")

	return p
}

// isRenderable reports whether a MIME type has a rich renderer available.
func isRenderable(mimeType string) bool {
	switch baseMIME(mimeType) {
	case "text/markdown", "text/x-org":
		return true
	}
	return false
}

// renderContent produces a rich render for the given content. On any failure
// the caller falls back to syntax highlighting.
func renderContent(content, mimeType, theme string) (template.HTML, error) {
	switch baseMIME(mimeType) {
	case "text/markdown":
		return renderMarkdown(content, theme)
	case "text/x-org":
		return renderOrg(content, theme)
	}
	return "", fmt.Errorf("no renderer for %q", mimeType)
}

// renderMarkdown converts Markdown to HTML using goldmark with GitHub-style
// extensions and Chroma highlighting on fenced code blocks. WithUnsafe lets
// raw HTML blocks through the renderer; all output is sanitized afterwards,
// so dangerous constructs are stripped regardless.
func renderMarkdown(content, theme string) (template.HTML, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM, // tables, strikethrough, linkify, task lists
			extension.Footnote,
			extension.DefinitionList,
			highlighting.NewHighlighting(
				highlighting.WithStyle(theme),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithUnsafe(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return template.HTML(docPolicy.Sanitize(buf.String())), nil
}

// renderOrg converts Org-mode content to HTML using go-org. The HTMLWriter's
// HighlightCodeBlock hook slots Chroma in for #+BEGIN_SRC blocks; returning
// an empty string makes go-org fall back to its plain <pre> rendering.
func renderOrg(content, theme string) (template.HTML, error) {
	doc := org.New().Parse(strings.NewReader(content), "")
	w := org.NewHTMLWriter()
	w.HighlightCodeBlock = func(source, lang string, inline bool, _ map[string]string) string {
		return chromaHighlightBlock(source, lang, theme)
	}
	out, err := doc.Write(w)
	if err != nil {
		return "", fmt.Errorf("org render: %w", err)
	}
	return template.HTML(docPolicy.Sanitize(out)), nil
}

// chromaHighlightBlock runs source through the Chroma lexer for lang and
// returns a class-based HTML fragment, empty on any error so callers fall
// back gracefully.
func chromaHighlightBlock(source, lang, theme string) string {
	l := lexers.Get(lang)
	if l == nil {
		l = lexers.Fallback
	}
	l = chroma.Coalesce(l)

	style := styles.Get(theme)
	if style == nil {
		style = styles.Fallback
	}

	f := chromahtml.New(chromahtml.WithClasses(true))

	it, err := l.Tokenise(nil, source)
	if err != nil {
		return ""
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, style, it); err != nil {
		return ""
	}
	return buf.String()
}
