package mcpserver

// LinkDialectContract describes the three image link grammars that LLM
// consumers must follow when reading or rewriting note lines.
const LinkDialectContract = `# Raido Image Link Dialects

Notes embed images in one of three textual dialects. A line holds at
most one recognized image link; the first match on a line wins.

## Wiki embed

` + "```" + `
![[img/cat.png]]
![[img/cat.png|A cat]]
![[img/cat.png|A cat|200]]
![[img/cat.png|A cat|200x100]]
![[img/cat.png|200]]
` + "```" + `

- Segments after the target are separated by ` + "`" + `|` + "`" + `.
- A trailing segment of the form ` + "`" + `W` + "`" + ` or ` + "`" + `WxH` + "`" + ` (digits only) is the
  display size; any other trailing segment is display text.
- ` + "`" + `![[target]]` + "`" + ` with no segments has neither display text nor size.

## Markdown image

` + "```" + `
![A cat](img/cat.png)
![](img/cat.png)
![A cat](img/cat.png "a title")
` + "```" + `

- The bracketed part is the alt text and may be empty. This dialect
  carries no width or height; setting a size on it is an error.
- A quoted title after the path survives rewrites untouched.

## HTML img tag

` + "```" + `
<img src="img/cat.png" alt="A cat" width="200" height="100">
<img src='img/cat.png' class="float-right"/>
` + "```" + `

- ` + "`" + `src` + "`" + ` carries the target; ` + "`" + `alt` + "`" + ` the display text; ` + "`" + `width` + "`" + `/` + "`" + `height` + "`" + `
  the display size.
- A rewrite preserves the original quote style, self-closing slash, and
  every attribute it does not change (` + "`" + `class` + "`" + `, ` + "`" + `style` + "`" + `, ...).

## Rules

1. **Sizes** are ` + "`" + `W` + "`" + ` or ` + "`" + `WxH` + "`" + ` with positive integers, at most 10000
   per axis. An empty size clears the dimension.
2. **Targets** are vault-relative paths with forward slashes. A rename
   changes only the path component; display text and size survive.
3. **Optimistic rewrites:** always send the line text as last observed
   in ` + "`" + `expected_line` + "`" + `. If the live line differs but already carries the
   requested values, the rewrite reports unchanged instead of editing.
4. **Uploads** via the ` + "`" + `upload_image` + "`" + ` tool land in ` + "`" + `img/` + "`" + ` and return a
   ` + "`" + `wikiEmbed` + "`" + ` field ready to paste.
`
