package link

import "strings"

// ParseLine scans one line of note text and returns the first image
// link found. Dialects are tried in a fixed order — wiki embed, plain
// wikilink, Markdown image, <img> tag — and within a dialect the
// leftmost well-formed occurrence wins. ok is false when the line has
// no recognizable link.
func ParseLine(line string) (Match, bool) {
	for _, scan := range scanners {
		if m, ok := scan(line); ok {
			return m, true
		}
	}
	return Match{}, false
}

var scanners = []func(string) (Match, bool){
	scanWikiEmbed,
	scanWikiPlain,
	scanMarkdown,
	scanHTML,
}

func scanWikiEmbed(line string) (Match, bool) {
	for from := 0; ; {
		i := strings.Index(line[from:], "![[")
		if i < 0 {
			return Match{}, false
		}
		start := from + i
		if m, ok := parseWiki(line, start, true); ok {
			return m, true
		}
		from = start + 1
	}
}

func scanWikiPlain(line string) (Match, bool) {
	for from := 0; ; {
		i := strings.Index(line[from:], "[[")
		if i < 0 {
			return Match{}, false
		}
		start := from + i
		// An embed's opening bracket pair belongs to the embed grammar.
		if start > 0 && line[start-1] == '!' {
			from = start + 1
			continue
		}
		if m, ok := parseWiki(line, start, false); ok {
			return m, true
		}
		from = start + 1
	}
}

// parseWiki parses a wikilink whose text starts at start: the '!' for
// embeds, the first '[' otherwise. Segments are split on '|'; a last
// segment that reads as a size spec is the size, everything between
// target and size is display text.
func parseWiki(line string, start int, embed bool) (Match, bool) {
	open := start
	if embed {
		open++
	}
	inner := open + 2
	rel := strings.Index(line[inner:], "]]")
	if rel < 0 {
		return Match{}, false
	}
	content := line[inner : inner+rel]
	if content == "" || strings.ContainsAny(content, "[]") {
		return Match{}, false
	}
	segs := strings.Split(content, "|")
	target := segs[0]
	if target == "" {
		return Match{}, false
	}
	p := Parts{Dialect: DialectWikiLink, Target: target, RawTarget: target}
	if embed {
		p.Dialect = DialectWiki
	}
	rest := segs[1:]
	if len(rest) > 0 {
		if w, h, err := ParseSizeSpec(rest[len(rest)-1]); err == nil {
			p.Width, p.Height = w, h
			rest = rest[:len(rest)-1]
		}
	}
	if len(rest) > 0 {
		p.Display = strings.Join(rest, "|")
		p.RawDisplay = p.Display
		p.HasDisplay = true
	}
	return Match{Line: line, Start: start, End: inner + rel + 2, Parts: p}, true
}

func scanMarkdown(line string) (Match, bool) {
	for from := 0; ; {
		i := strings.Index(line[from:], "![")
		if i < 0 {
			return Match{}, false
		}
		start := from + i
		// "![[ " opens a wiki embed, not a Markdown image.
		if strings.HasPrefix(line[start:], "![[") {
			from = start + 1
			continue
		}
		if m, ok := parseMarkdown(line, start); ok {
			return m, true
		}
		from = start + 1
	}
}

func parseMarkdown(line string, start int) (Match, bool) {
	i := start + 2
	for i < len(line) {
		c := line[i]
		if c == '\\' && i+1 < len(line) && (line[i+1] == '\\' || line[i+1] == ']') {
			i += 2
			continue
		}
		if c == ']' {
			break
		}
		i++
	}
	if i >= len(line) || !strings.HasPrefix(line[i:], "](") {
		return Match{}, false
	}
	rawAlt := line[start+2 : i]
	pstart := i + 2
	rel := strings.IndexByte(line[pstart:], ')')
	if rel < 0 {
		return Match{}, false
	}
	target, title := splitTitle(line[pstart : pstart+rel])
	if target == "" {
		return Match{}, false
	}
	display := unescapeMarkdownAlt(rawAlt)
	p := Parts{
		Dialect:    DialectMarkdown,
		Target:     target,
		RawTarget:  target,
		Display:    display,
		RawDisplay: rawAlt,
		HasDisplay: display != "",
		Title:      title,
	}
	return Match{Line: line, Start: start, End: pstart + rel + 1, Parts: p}, true
}

// splitTitle separates an optional quoted title from the path portion
// of a Markdown destination, e.g. `cat.png "My cat"`.
func splitTitle(inner string) (target, title string) {
	sp := strings.IndexByte(inner, ' ')
	if sp < 0 {
		return inner, ""
	}
	rest := inner[sp+1:]
	if len(rest) >= 2 {
		if q := rest[0]; (q == '"' || q == '\'') && rest[len(rest)-1] == q {
			return inner[:sp], rest
		}
	}
	return inner, ""
}

func scanHTML(line string) (Match, bool) {
	for from := 0; ; {
		start := indexImgTag(line, from)
		if start < 0 {
			return Match{}, false
		}
		if m, ok := parseIMG(line, start); ok {
			return m, true
		}
		from = start + 1
	}
}

// indexImgTag finds the next "<img" (ASCII case-insensitive) followed
// by whitespace, '>' or '/'.
func indexImgTag(line string, from int) int {
	for i := from; i+4 < len(line); i++ {
		if line[i] != '<' || !asciiFoldEq(line[i+1:i+4], "img") {
			continue
		}
		if c := line[i+4]; isSpace(c) || c == '>' || c == '/' {
			return i
		}
	}
	return -1
}

func asciiFoldEq(s, lower string) bool {
	if len(s) != len(lower) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != lower[i] {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\f'
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == ':' || c == '.'
}

// attr is one scanned tag attribute.
type attr struct {
	name     string // lowercased
	value    string // decoded later; raw text between quotes
	quote    byte   // 0 when unquoted or valueless
	raw      string // exact source text of the whole attribute
	hasValue bool
}

func parseIMG(line string, start int) (Match, bool) {
	i := start + 4
	var attrs []attr
	selfClosing := false
	end := -1
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return Match{}, false // tag never closes on this line
		}
		if line[i] == '>' {
			end = i + 1
			break
		}
		if line[i] == '/' {
			if i+1 < len(line) && line[i+1] == '>' {
				selfClosing = true
				end = i + 2
				break
			}
			return Match{}, false
		}
		a, next, ok := parseAttr(line, i)
		if !ok {
			return Match{}, false
		}
		attrs = append(attrs, a)
		i = next
	}
	if end < 0 {
		return Match{}, false
	}

	p := Parts{Dialect: DialectHTML}
	info := &TagInfo{SelfClosing: selfClosing, Quote: '"'}
	seenSrc, seenAlt := false, false
	for _, a := range attrs {
		switch {
		case a.name == "src" && a.hasValue && !seenSrc:
			seenSrc = true
			if a.quote == '\'' {
				info.Quote = '\''
			}
			p.RawTarget = a.value
			p.Target = unescapeAttr(a.value, a.quote)
		case a.name == "alt" && a.hasValue && !seenAlt:
			seenAlt = true
			p.RawDisplay = a.value
			p.Display = unescapeAttr(a.value, a.quote)
			p.HasDisplay = true
		case a.name == "width" && a.hasValue && p.Width == 0:
			if n, err := parseDim(a.value); err == nil && n > 0 {
				p.Width = n
			} else {
				// Non-numeric sizes like "50%" are not ours to manage.
				info.Others = append(info.Others, a.raw)
			}
		case a.name == "height" && a.hasValue && p.Height == 0:
			if n, err := parseDim(a.value); err == nil && n > 0 {
				p.Height = n
			} else {
				info.Others = append(info.Others, a.raw)
			}
		default:
			info.Others = append(info.Others, a.raw)
		}
	}
	if !seenSrc || p.Target == "" {
		return Match{}, false
	}
	p.Tag = info
	return Match{Line: line, Start: start, End: end, Parts: p}, true
}

// parseAttr parses one attribute starting at i, which indexes a byte
// that is neither whitespace nor a tag closer.
func parseAttr(line string, i int) (attr, int, bool) {
	nameStart := i
	for i < len(line) && isNameByte(line[i]) {
		i++
	}
	if i == nameStart {
		return attr{}, 0, false
	}
	name := strings.ToLower(line[nameStart:i])
	j := i
	for j < len(line) && isSpace(line[j]) {
		j++
	}
	if j >= len(line) || line[j] != '=' {
		// Boolean attribute.
		return attr{name: name, raw: line[nameStart:i]}, i, true
	}
	j++
	for j < len(line) && isSpace(line[j]) {
		j++
	}
	if j >= len(line) {
		return attr{}, 0, false
	}
	var val string
	var q byte
	if line[j] == '"' || line[j] == '\'' {
		q = line[j]
		k := j + 1
		rel := strings.IndexByte(line[k:], q)
		if rel < 0 {
			return attr{}, 0, false
		}
		val = line[k : k+rel]
		j = k + rel + 1
	} else {
		k := j
		for k < len(line) && !isSpace(line[k]) && line[k] != '>' && line[k] != '/' {
			k++
		}
		if k == j {
			return attr{}, 0, false
		}
		val = line[j:k]
		j = k
	}
	return attr{name: name, value: val, quote: q, raw: line[nameStart:j], hasValue: true}, j, true
}
