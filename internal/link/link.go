// Package link parses and serializes the image link dialects found in
// Markdown notes: wiki embeds ![[target|display|WxH]], plain wikilinks
// [[target|display]], Markdown images ![alt](path), and inline <img>
// tags. Parsing keeps enough of the source text that an untouched parse
// re-serializes byte-for-byte.
package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// Dialect identifies which grammar a link was written in.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectWiki            // ![[target|display|WxH]]
	DialectWikiLink        // [[target|display]]
	DialectMarkdown        // ![display](target)
	DialectHTML            // <img src="target" alt="display" ...>
)

func (d Dialect) String() string {
	switch d {
	case DialectWiki:
		return "wiki"
	case DialectWikiLink:
		return "wikilink"
	case DialectMarkdown:
		return "markdown"
	case DialectHTML:
		return "html"
	default:
		return "unknown"
	}
}

// TagInfo preserves <img> formatting details that must survive a rewrite.
type TagInfo struct {
	Quote       byte     // quote character of the src value; unquoted input is normalized to '"'
	SelfClosing bool     // tag ended with "/>"
	Others      []string // non-core attributes, exact source text, original order
}

// Parts is the normalized form of one image link. The Raw fields carry
// the exact source bytes of a value so an unchanged field re-serializes
// as written; callers that change a field must clear its Raw companion.
type Parts struct {
	Dialect    Dialect
	Target     string // decoded path
	RawTarget  string
	Display    string // caption or alt text
	RawDisplay string
	HasDisplay bool
	Width      int      // pixels, 0 = unset
	Height     int      // pixels, 0 = unset
	Title      string   // Markdown title suffix, quotes included
	Tag        *TagInfo // HTML only
}

// SameValues reports whether two parses agree on every field a rewrite
// can change, including parked size attributes a size rewrite prunes.
// Other formatting fidelity fields are ignored.
func SameValues(a, b Parts) bool {
	return a.Target == b.Target &&
		a.HasDisplay == b.HasDisplay &&
		a.Display == b.Display &&
		a.Width == b.Width &&
		a.Height == b.Height &&
		a.ParkedSize() == b.ParkedSize()
}

// ParkedSize reports whether an <img> carries width or height
// attributes the parser left unmanaged: non-numeric values such as
// "50%" are parked verbatim among the other attributes.
func (p Parts) ParkedSize() bool {
	if p.Tag == nil {
		return false
	}
	for _, raw := range p.Tag.Others {
		if n := attrNameOf(raw); n == "width" || n == "height" {
			return true
		}
	}
	return false
}

// DropParkedSize removes parked width/height attributes. A rewrite that
// changes the managed size must call it, otherwise the rebuilt tag
// would carry the old non-numeric value next to the new one. The tag
// info is cloned; other parses of the same line keep the original.
func (p *Parts) DropParkedSize() {
	if !p.ParkedSize() {
		return
	}
	t := *p.Tag
	t.Others = nil
	for _, raw := range p.Tag.Others {
		if n := attrNameOf(raw); n == "width" || n == "height" {
			continue
		}
		t.Others = append(t.Others, raw)
	}
	p.Tag = &t
}

// attrNameOf returns the lowercased name prefix of a raw attribute.
func attrNameOf(raw string) string {
	i := 0
	for i < len(raw) && isNameByte(raw[i]) {
		i++
	}
	return strings.ToLower(raw[:i])
}

// Match is one link located inside a line of text.
type Match struct {
	Line  string // the full line the link was found in
	Start int    // byte offset of the link
	End   int    // byte offset just past the link
	Parts Parts
}

// Rebuild re-serializes the link and splices it back into the line,
// leaving every byte outside the [Start, End) span untouched.
func (m Match) Rebuild() (string, error) {
	built, err := Build(m.Parts)
	if err != nil {
		return "", err
	}
	return m.Line[:m.Start] + built + m.Line[m.End:], nil
}

// Build serializes parts back to link text in its own dialect.
func Build(p Parts) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	switch p.Dialect {
	case DialectWiki, DialectWikiLink:
		return buildWiki(p), nil
	case DialectMarkdown:
		return buildMarkdown(p), nil
	case DialectHTML:
		return buildHTML(p), nil
	}
	return "", fmt.Errorf("link: %w: dialect %d", apperr.ErrInvalidLink, p.Dialect)
}

func (p Parts) validate() error {
	if p.Target == "" {
		return fmt.Errorf("link: %w: empty target", apperr.ErrInvalidLink)
	}
	if strings.ContainsAny(p.Target, "\n\r") || strings.ContainsAny(p.Display, "\n\r") {
		return fmt.Errorf("link: %w: embedded line break", apperr.ErrInvalidLink)
	}
	if p.Width < 0 || p.Width > MaxDimension || p.Height < 0 || p.Height > MaxDimension {
		return fmt.Errorf("link: %w: %dx%d out of range", apperr.ErrInvalidSize, p.Width, p.Height)
	}
	switch p.Dialect {
	case DialectWiki, DialectWikiLink:
		if strings.ContainsAny(p.Target, "[]|") {
			return fmt.Errorf("link: %w: wiki target may not contain '[', ']' or '|'", apperr.ErrInvalidLink)
		}
		if strings.ContainsAny(p.Display, "[]") {
			return fmt.Errorf("link: %w: wiki display may not contain brackets", apperr.ErrInvalidLink)
		}
		if p.HasDisplay {
			// A display whose last segment reads as a size would come
			// back as a size on the next parse.
			segs := strings.Split(p.Display, "|")
			if _, _, err := ParseSizeSpec(segs[len(segs)-1]); err == nil {
				return fmt.Errorf("link: %w: display %q would read back as a size", apperr.ErrInvalidLink, p.Display)
			}
		}
		if p.Height > 0 && p.Width == 0 {
			return fmt.Errorf("link: %w: height without width", apperr.ErrInvalidSize)
		}
	case DialectMarkdown:
		if p.Width != 0 || p.Height != 0 {
			return fmt.Errorf("link: %w: markdown images carry no size", apperr.ErrInvalidSize)
		}
		if strings.ContainsRune(p.Target, ')') {
			return fmt.Errorf("link: %w: markdown target may not contain ')'", apperr.ErrInvalidLink)
		}
	case DialectHTML:
		// height without width is representable in a tag
	default:
		return fmt.Errorf("link: %w: unknown dialect", apperr.ErrInvalidLink)
	}
	return nil
}

func buildWiki(p Parts) string {
	var b strings.Builder
	if p.Dialect == DialectWiki {
		b.WriteByte('!')
	}
	b.WriteString("[[")
	b.WriteString(p.Target)
	if p.HasDisplay {
		b.WriteByte('|')
		b.WriteString(p.Display)
	}
	if p.Width > 0 {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(p.Width))
		if p.Height > 0 {
			b.WriteByte('x')
			b.WriteString(strconv.Itoa(p.Height))
		}
	}
	b.WriteString("]]")
	return b.String()
}

func buildMarkdown(p Parts) string {
	alt := p.RawDisplay
	if unescapeMarkdownAlt(alt) != p.Display {
		alt = escapeMarkdownAlt(p.Display)
	}
	var b strings.Builder
	b.WriteString("![")
	b.WriteString(alt)
	b.WriteString("](")
	b.WriteString(p.Target)
	if p.Title != "" {
		b.WriteByte(' ')
		b.WriteString(p.Title)
	}
	b.WriteByte(')')
	return b.String()
}

// buildHTML emits attributes in a fixed order: src, alt, width, height,
// then any other attributes exactly as they appeared in the source.
func buildHTML(p Parts) string {
	q := byte('"')
	var info TagInfo
	if p.Tag != nil {
		info = *p.Tag
		if info.Quote == '\'' {
			q = '\''
		}
	}
	var b strings.Builder
	b.WriteString("<img src=")
	writeAttr(&b, q, p.RawTarget, p.Target)
	if p.HasDisplay {
		b.WriteString(" alt=")
		writeAttr(&b, q, p.RawDisplay, p.Display)
	}
	if p.Width > 0 {
		fmt.Fprintf(&b, " width=%c%d%c", q, p.Width, q)
	}
	if p.Height > 0 {
		fmt.Fprintf(&b, " height=%c%d%c", q, p.Height, q)
	}
	for _, raw := range info.Others {
		b.WriteByte(' ')
		b.WriteString(raw)
	}
	if info.SelfClosing {
		b.WriteString(" />")
	} else {
		b.WriteByte('>')
	}
	return b.String()
}

// writeAttr emits a quoted attribute value, reusing the raw source form
// when it still decodes to the current value.
func writeAttr(b *strings.Builder, q byte, raw, val string) {
	b.WriteByte(q)
	if raw != "" && unescapeAttr(raw, q) == val {
		b.WriteString(raw)
	} else {
		b.WriteString(escapeAttr(val, q))
	}
	b.WriteByte(q)
}

func escapeMarkdownAlt(s string) string {
	return strings.NewReplacer(`\`, `\\`, `]`, `\]`, `(`, `\(`).Replace(s)
}

func unescapeMarkdownAlt(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == ']' || s[i+1] == '(') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escapeAttr escapes the minimal set an attribute value needs: '&', '<',
// '>' and the active quote character.
func escapeAttr(v string, q byte) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case q:
			if q == '"' {
				b.WriteString("&quot;")
			} else {
				b.WriteString("&#39;")
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescapeAttr decodes exactly the entities escapeAttr emits. Anything
// else is kept verbatim so unrecognized entities survive a round trip.
func unescapeAttr(s string, q byte) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "&amp;"):
			b.WriteByte('&')
			i += len("&amp;")
		case strings.HasPrefix(rest, "&lt;"):
			b.WriteByte('<')
			i += len("&lt;")
		case strings.HasPrefix(rest, "&gt;"):
			b.WriteByte('>')
			i += len("&gt;")
		case q == '"' && strings.HasPrefix(rest, "&quot;"):
			b.WriteByte('"')
			i += len("&quot;")
		case q == '\'' && strings.HasPrefix(rest, "&#39;"):
			b.WriteByte('\'')
			i += len("&#39;")
		default:
			b.WriteByte('&')
			i++
		}
	}
	return b.String()
}
