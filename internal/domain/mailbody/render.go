// Package mailbody turns author-supplied message text into email markup.
// Everything here is pure: no I/O, no clocks except what the caller passes in.
package mailbody

import (
	"bytes"
	"html/template"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// paragraphStyle is applied inline because most mail clients drop <style> rules.
const paragraphStyle = `margin: 0 0 15px 0; color: #333333; font-size: 16px; line-height: 1.6;`

// EmptyBodyPlaceholder is rendered when the body has no visible text.
const EmptyBodyPlaceholder = "(No message content was provided.)"

var (
	blankLine = regexp.MustCompile(`\n\s*\n`)
	brTag     = regexp.MustCompile(`(?i)<br\s*/?>`)
	pOpenTag  = regexp.MustCompile(`(?i)<p[^>]*>`)
	pCloseTag = regexp.MustCompile(`(?i)</p>`)
	anyTag    = regexp.MustCompile(`<[^>]*>?`)
	charRef   = regexp.MustCompile(`&(nbsp|amp|quot|lt|gt|#[0-9]+);`)
)

var namedRefs = map[string]string{
	"nbsp": " ",
	"amp":  "&",
	"quot": `"`,
	"lt":   "<",
	"gt":   ">",
}

// mdRenderer is configured for safe output: raw HTML in the source is not
// passed through because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// EscapeHTML escapes the five characters that are significant in markup.
func EscapeHTML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#039;",
	)
	return r.Replace(s)
}

// Paragraphs splits text on blank lines and drops empty paragraphs.
// POST: each returned paragraph is trimmed and non-empty
func Paragraphs(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	for _, p := range blankLine.Split(s, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RenderBodyHTML renders untrusted plain text as escaped HTML paragraphs.
// Single newlines inside a paragraph become <br>.
// PRE: none
// POST: output contains no markup originating from body
func RenderBodyHTML(body string) string {
	paras := Paragraphs(EscapeHTML(body))
	if len(paras) == 0 {
		return `<p style="` + paragraphStyle + `">` + EmptyBodyPlaceholder + `</p>`
	}
	lines := make([]string, 0, len(paras))
	for _, p := range paras {
		lines = append(lines, `<p style="`+paragraphStyle+`">`+strings.ReplaceAll(p, "\n", "<br>")+`</p>`)
	}
	return strings.Join(lines, "\n")
}

// RenderMarkdownHTML renders a markdown body. Raw HTML in the source is dropped.
// PRE: none
// POST: returns the escaped plain-text rendering if markdown conversion fails
func RenderMarkdownHTML(body string) string {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(body), &buf); err != nil {
		return RenderBodyHTML(body)
	}
	return strings.TrimSpace(buf.String())
}

// PlainText derives a plain-text alternative from rendered markup:
// line breaks and paragraph ends become newlines, remaining tags are
// stripped and a fixed set of character references is decoded.
func PlainText(markup string) string {
	s := brTag.ReplaceAllString(markup, "\n")
	s = pOpenTag.ReplaceAllString(s, "")
	s = pCloseTag.ReplaceAllString(s, "\n\n")
	s = anyTag.ReplaceAllString(s, "")
	s = DecodeEntities(s)
	return strings.TrimSpace(s)
}

// DecodeEntities decodes &nbsp; &amp; &quot; &lt; &gt; and decimal numeric
// references in a single pass, so "&amp;lt;" decodes to "&lt;" and no further.
func DecodeEntities(s string) string {
	return charRef.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := namedRefs[name]; ok {
			return v
		}
		n, err := strconv.Atoi(name[1:])
		if err != nil || n <= 0 || n > utf8.MaxRune {
			return m
		}
		return string(rune(n))
	})
}

// Rendered is a message ready to hand to a provider.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render produces the full HTML document and the plain-text alternative.
// textBody, when non-empty, is used verbatim as the plain-text part.
// PRE: brand is populated
// POST: HTML is a complete document; Text is never empty for a non-empty body
func Render(subject, body, format, textBody string, brand Brand) (Rendered, error) {
	var fragment string
	if format == "markdown" {
		fragment = RenderMarkdownHTML(body)
	} else {
		fragment = RenderBodyHTML(body)
	}

	doc, err := Wrap(subject, fragment, brand)
	if err != nil {
		return Rendered{}, err
	}

	text := strings.TrimSpace(textBody)
	if text == "" {
		text = PlainText(fragment)
	}
	return Rendered{Subject: subject, HTML: doc, Text: text}, nil
}

// Wrap embeds a rendered body fragment in the branded document layout.
// The subject is escaped by html/template; fragment is trusted as already safe.
func Wrap(subject, fragment string, brand Brand) (string, error) {
	var buf bytes.Buffer
	err := layout.Execute(&buf, layoutData{
		Subject: subject,
		Body:    template.HTML(fragment),
		Brand:   brand,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
