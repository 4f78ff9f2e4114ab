package link

import (
	"testing"
)

func mustParse(t *testing.T, line string) Match {
	t.Helper()
	m, ok := ParseLine(line)
	if !ok {
		t.Fatalf("ParseLine(%q): no match", line)
	}
	return m
}

func TestParseLine_WikiEmbedBare(t *testing.T) {
	m := mustParse(t, "before ![[cat.png]] after")
	p := m.Parts
	if p.Dialect != DialectWiki {
		t.Errorf("dialect = %v, want wiki", p.Dialect)
	}
	if p.Target != "cat.png" {
		t.Errorf("target = %q, want %q", p.Target, "cat.png")
	}
	if p.HasDisplay || p.Display != "" {
		t.Errorf("display = %q (has=%v), want none", p.Display, p.HasDisplay)
	}
	if p.Width != 0 || p.Height != 0 {
		t.Errorf("size = %dx%d, want unset", p.Width, p.Height)
	}
	if got := m.Line[m.Start:m.End]; got != "![[cat.png]]" {
		t.Errorf("span = %q", got)
	}
}

func TestParseLine_WikiEmbedDisplayAndSize(t *testing.T) {
	cases := []struct {
		line    string
		target  string
		display string
		hasDisp bool
		w, h    int
	}{
		{"![[cat.png|Cat]]", "cat.png", "Cat", true, 0, 0},
		{"![[cat.png|Cat|100]]", "cat.png", "Cat", true, 100, 0},
		{"![[cat.png|Cat|100x50]]", "cat.png", "Cat", true, 100, 50},
		{"![[cat.png|100]]", "cat.png", "", false, 100, 0},
		{"![[cat.png|640x480]]", "cat.png", "", false, 640, 480},
		{"![[img/cat.png|a|b|200]]", "img/cat.png", "a|b", true, 200, 0},
		{"![[cat.png|]]", "cat.png", "", true, 0, 0},
		// Out-of-range or malformed trailing segments are captions.
		{"![[cat.png|0]]", "cat.png", "0", true, 0, 0},
		{"![[cat.png|99999]]", "cat.png", "99999", true, 0, 0},
		{"![[cat.png|100x]]", "cat.png", "100x", true, 0, 0},
	}
	for _, c := range cases {
		m := mustParse(t, c.line)
		p := m.Parts
		if p.Target != c.target {
			t.Errorf("%q: target = %q, want %q", c.line, p.Target, c.target)
		}
		if p.Display != c.display || p.HasDisplay != c.hasDisp {
			t.Errorf("%q: display = %q (has=%v), want %q (has=%v)",
				c.line, p.Display, p.HasDisplay, c.display, c.hasDisp)
		}
		if p.Width != c.w || p.Height != c.h {
			t.Errorf("%q: size = %dx%d, want %dx%d", c.line, p.Width, p.Height, c.w, c.h)
		}
	}
}

func TestParseLine_PlainWikilink(t *testing.T) {
	m := mustParse(t, "see [[cat.png|the cat]] here")
	if m.Parts.Dialect != DialectWikiLink {
		t.Errorf("dialect = %v, want wikilink", m.Parts.Dialect)
	}
	if m.Parts.Target != "cat.png" || m.Parts.Display != "the cat" {
		t.Errorf("parts = %+v", m.Parts)
	}
}

func TestParseLine_EmbedBracketsNotPlain(t *testing.T) {
	// The brackets of an embed must not re-match as a plain wikilink.
	m := mustParse(t, "![[cat.png]]")
	if m.Parts.Dialect != DialectWiki {
		t.Errorf("dialect = %v, want wiki", m.Parts.Dialect)
	}
	if m.Start != 0 {
		t.Errorf("start = %d, want 0", m.Start)
	}
}

func TestParseLine_DialectPrecedence(t *testing.T) {
	// The embed dialect wins even when another dialect occurs earlier
	// in the line.
	m := mustParse(t, "![alt](a.png) then ![[b.png]]")
	if m.Parts.Dialect != DialectWiki {
		t.Fatalf("dialect = %v, want wiki", m.Parts.Dialect)
	}
	if m.Parts.Target != "b.png" {
		t.Errorf("target = %q, want b.png", m.Parts.Target)
	}

	m = mustParse(t, `<img src="a.png"> and ![alt](b.png)`)
	if m.Parts.Dialect != DialectMarkdown {
		t.Fatalf("dialect = %v, want markdown", m.Parts.Dialect)
	}
	if m.Parts.Target != "b.png" {
		t.Errorf("target = %q, want b.png", m.Parts.Target)
	}
}

func TestParseLine_FirstMatchWithinDialect(t *testing.T) {
	m := mustParse(t, "![[a.png]] and ![[b.png]]")
	if m.Parts.Target != "a.png" {
		t.Errorf("target = %q, want a.png (leftmost)", m.Parts.Target)
	}
}

func TestParseLine_Markdown(t *testing.T) {
	cases := []struct {
		line    string
		target  string
		display string
		title   string
	}{
		{"![Cat](cat.png)", "cat.png", "Cat", ""},
		{"![](img/cat.png)", "img/cat.png", "", ""},
		{`![a\]b](cat.png)`, "cat.png", "a]b", ""},
		{`![Cat](cat.png "My cat")`, "cat.png", "Cat", `"My cat"`},
		{"text ![c](a/b.png) more", "a/b.png", "c", ""},
	}
	for _, c := range cases {
		m := mustParse(t, c.line)
		p := m.Parts
		if p.Dialect != DialectMarkdown {
			t.Errorf("%q: dialect = %v", c.line, p.Dialect)
		}
		if p.Target != c.target || p.Display != c.display || p.Title != c.title {
			t.Errorf("%q: got target=%q display=%q title=%q", c.line, p.Target, p.Display, p.Title)
		}
	}
}

func TestParseLine_HTML(t *testing.T) {
	m := mustParse(t, `<img src="cat.png" alt="old" class="x">`)
	p := m.Parts
	if p.Dialect != DialectHTML {
		t.Fatalf("dialect = %v, want html", p.Dialect)
	}
	if p.Target != "cat.png" || p.Display != "old" || !p.HasDisplay {
		t.Errorf("parts = %+v", p)
	}
	if p.Tag == nil || len(p.Tag.Others) != 1 || p.Tag.Others[0] != `class="x"` {
		t.Errorf("others = %+v", p.Tag)
	}
}

func TestParseLine_HTMLVariants(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Parts
	}{
		{
			"attribute order is free",
			`<img class="x" width="100" src='cat.png'>`,
			Parts{Target: "cat.png", Width: 100},
		},
		{
			"case-insensitive names and tag",
			`<IMG SRC="cat.png" ALT="c" HEIGHT="50">`,
			Parts{Target: "cat.png", Display: "c", HasDisplay: true, Height: 50},
		},
		{
			"unquoted values",
			`<img src=cat.png width=100>`,
			Parts{Target: "cat.png", Width: 100},
		},
		{
			"self closing",
			`<img src="cat.png" />`,
			Parts{Target: "cat.png"},
		},
		{
			"entities in alt",
			`<img src="cat.png" alt="Tom &amp; Jerry">`,
			Parts{Target: "cat.png", Display: "Tom & Jerry", HasDisplay: true},
		},
	}
	for _, c := range cases {
		m, ok := ParseLine(c.line)
		if !ok {
			t.Errorf("%s: no match for %q", c.name, c.line)
			continue
		}
		p := m.Parts
		if p.Target != c.want.Target || p.Display != c.want.Display ||
			p.HasDisplay != c.want.HasDisplay || p.Width != c.want.Width || p.Height != c.want.Height {
			t.Errorf("%s: got %+v", c.name, p)
		}
	}
}

func TestParseLine_HTMLNonNumericSizePreserved(t *testing.T) {
	m := mustParse(t, `<img src="cat.png" width="50%">`)
	if m.Parts.Width != 0 {
		t.Errorf("width = %d, want 0 (non-numeric is not managed)", m.Parts.Width)
	}
	if len(m.Parts.Tag.Others) != 1 || m.Parts.Tag.Others[0] != `width="50%"` {
		t.Errorf("others = %v", m.Parts.Tag.Others)
	}
	// It must survive a rebuild untouched.
	out, err := m.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if out != `<img src="cat.png" width="50%">` {
		t.Errorf("rebuilt = %q", out)
	}
}

func TestParseLine_NoMatch(t *testing.T) {
	cases := []string{
		"plain text with no links",
		"[not an image](cat.png)",
		"![[unterminated",
		"![alt](unterminated",
		"<img without-src>",
		"![[]]",
		"![[|alias]]",
		"<p>some html</p>",
		"a [ b ] c ( d )",
	}
	for _, line := range cases {
		if m, ok := ParseLine(line); ok {
			t.Errorf("ParseLine(%q) matched %+v, want no match", line, m.Parts)
		}
	}
}

func TestParseLine_SkipsInvalidThenMatchesLater(t *testing.T) {
	m := mustParse(t, "![[bad [x]] then ![[good.png]]")
	if m.Parts.Target != "good.png" {
		t.Errorf("target = %q, want good.png", m.Parts.Target)
	}
}

// Serializing an untouched parse must reproduce the line byte-for-byte.
func TestRoundTrip_Unchanged(t *testing.T) {
	lines := []string{
		"![[cat.png]]",
		"![[img/cat.png|Cat]]",
		"![[cat.png|Cat|100]]",
		"![[cat.png|Cat|100x50]]",
		"![[cat.png|640x480]]",
		"[[cat.png]]",
		"[[cat.png|the cat]]",
		"prefix ![[cat.png|a|b|200]] suffix",
		"![Cat](cat.png)",
		"![](cat.png)",
		`![a\]b](img/cat.png)`,
		`![Cat](cat.png "My cat")`,
		"- item with ![pic](a.png) inline",
		`<img src="cat.png">`,
		`<img src="cat.png" alt="old" class="x">`,
		`<img src='cat.png' alt='old'>`,
		`<img src="cat.png" alt="Tom &amp; Jerry" width="100" height="50" data-zoom loading="lazy">`,
		`<img src="cat.png" />`,
		"| cell | ![[cat.png|100]] | cell |",
		"text before <img src=\"a b.png\" alt=\"\"> after",
	}
	for _, line := range lines {
		m, ok := ParseLine(line)
		if !ok {
			t.Errorf("no match for %q", line)
			continue
		}
		out, err := m.Rebuild()
		if err != nil {
			t.Errorf("Rebuild(%q): %v", line, err)
			continue
		}
		if out != line {
			t.Errorf("round trip broke:\n in  %q\n out %q", line, out)
		}
	}
}

func TestRoundTrip_BuildThenParse(t *testing.T) {
	cases := []Parts{
		{Dialect: DialectWiki, Target: "cat.png"},
		{Dialect: DialectWiki, Target: "img/cat.png", Display: "Cat", HasDisplay: true},
		{Dialect: DialectWiki, Target: "cat.png", Display: "Cat", HasDisplay: true, Width: 100, Height: 50},
		{Dialect: DialectWikiLink, Target: "cat.png", Display: "the cat", HasDisplay: true},
		{Dialect: DialectMarkdown, Target: "cat.png", Display: "a]b", HasDisplay: true},
		{Dialect: DialectHTML, Target: "cat.png", Display: "Tom & Jerry", HasDisplay: true, Width: 10},
	}
	for _, p := range cases {
		text, err := Build(p)
		if err != nil {
			t.Errorf("Build(%+v): %v", p, err)
			continue
		}
		m, ok := ParseLine(text)
		if !ok {
			t.Errorf("Build produced unparseable %q", text)
			continue
		}
		if !SameValues(m.Parts, p) {
			t.Errorf("values drifted:\n built  %+v\n parsed %+v", p, m.Parts)
		}
		if m.Parts.Dialect != p.Dialect {
			t.Errorf("%q: dialect = %v, want %v", text, m.Parts.Dialect, p.Dialect)
		}
	}
}
