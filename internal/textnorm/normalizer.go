// Package textnorm converts source-specific message bodies into clean plain
// text. Forum posts arrive as HTML; chat exports arrive as plain text
// polluted with UI chrome. Both paths are lossy on markup but never lossy on
// message content: on any parse failure the input is returned trimmed rather
// than dropped.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)

	// Relative-time tokens that Facebook-style exports append under each
	// post: "3w", "2d", "5h", "1mo", "45m", ...
	relativeTime = regexp.MustCompile(`^\d+\s?(s|m|h|d|w|y|mo|min|hr)$`)
	bareCounter  = regexp.MustCompile(`^\d+$`)
)

// chromeLines are exact-match UI artifacts stripped from chat exports.
var chromeLines = map[string]struct{}{
	"Like":            {},
	"Reply":           {},
	"Share":           {},
	"Comment":         {},
	"See translation": {},
	"See more":        {},
	"Follow":          {},
	"Most relevant":   {},
	"Edited":          {},
	"Author":          {},
	"Top contributor": {},
}

// blockTags are HTML elements rendered as their own paragraph.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "ul": {}, "ol": {}, "li": {}, "pre": {},
	"table": {}, "tr": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {},
	"h5": {}, "h6": {}, "aside": {}, "blockquote": {}, "section": {},
	"article": {}, "header": {}, "footer": {},
}

// CleanHTML renders forum HTML as plain text. Quote blocks (blockquote, or
// aside carrying a "quote" class, the Discourse convention) come out with
// every line prefixed "> " and a blank line on each side, so the quoted
// context survives flattening. Entities are decoded by the parser. Runs of
// horizontal whitespace collapse to one space; three or more newlines
// collapse to a single blank line.
func CleanHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	var segments []segment
	var buf strings.Builder
	walk(doc, &buf, &segments)
	flush(&buf, false, &segments)

	var parts []string
	for _, seg := range segments {
		text := tidyBlock(seg.text)
		if text == "" {
			continue
		}
		if seg.quoted {
			lines := strings.Split(text, "\n")
			for i, line := range lines {
				lines[i] = "> " + line
			}
			text = strings.Join(lines, "\n")
		}
		parts = append(parts, text)
	}

	out := strings.Join(parts, "\n\n")
	out = newlineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// segment is one top-level output block, quoted or not.
type segment struct {
	text   string
	quoted bool
}

// isQuote reports whether a node is a quoted-reply container: a blockquote,
// or an aside whose class list includes "quote" (the Discourse markup for
// reply quoting).
func isQuote(n *html.Node) bool {
	if n.Data == "blockquote" {
		return true
	}
	if n.Data != "aside" {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, class := range strings.Fields(attr.Val) {
				if class == "quote" || strings.HasPrefix(class, "quote-") {
					return true
				}
			}
		}
	}
	return false
}

func walk(n *html.Node, buf *strings.Builder, segments *[]segment) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		switch {
		case n.Data == "script" || n.Data == "style":
			return
		case n.Data == "br":
			buf.WriteString("\n")
			return
		case isQuote(n):
			flush(buf, false, segments)
			var quoted strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walkQuoted(c, &quoted)
			}
			flush(&quoted, true, segments)
			return
		}
		_, block := blockTags[n.Data]
		if block {
			flush(buf, false, segments)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, buf, segments)
		}
		if block {
			flush(buf, false, segments)
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, buf, segments)
		}
	}
}

// walkQuoted flattens the inside of a quote block, turning nested block
// boundaries into newlines so each quoted line gets its own "> " prefix.
func walkQuoted(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if n.Data == "br" {
			buf.WriteString("\n")
			return
		}
		_, block := blockTags[n.Data]
		if block {
			buf.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkQuoted(c, buf)
		}
		if block {
			buf.WriteString("\n")
		}
	}
}

func flush(buf *strings.Builder, quoted bool, segments *[]segment) {
	if buf.Len() == 0 {
		return
	}
	text := buf.String()
	buf.Reset()
	if strings.TrimSpace(text) == "" {
		return
	}
	*segments = append(*segments, segment{text: text, quoted: quoted})
}

// tidyBlock collapses horizontal whitespace within each line of a block and
// drops empty lines at the edges.
func tidyBlock(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" && (len(kept) == 0 || kept[len(kept)-1] == "") {
			continue
		}
		kept = append(kept, line)
	}
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, "\n")
}

// CleanChat strips scrape/export artifacts from a chat message: a leading
// line that just repeats the author's display name, exact-match reaction
// chrome ("Like", "Reply", ...), bare numeric counters, and relative-time
// tokens ("3w", "2d"). If stripping would leave nothing, it falls back to
// the text with only the author line removed so a real message is never
// emptied out.
func CleanChat(raw, author string) string {
	lines := strings.Split(raw, "\n")

	author = strings.TrimSpace(author)
	if len(lines) > 0 && author != "" && strings.TrimSpace(lines[0]) == author {
		lines = lines[1:]
	}
	withoutAuthor := strings.TrimSpace(strings.Join(lines, "\n"))

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if _, chrome := chromeLines[trimmed]; chrome {
			continue
		}
		if bareCounter.MatchString(trimmed) || relativeTime.MatchString(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return withoutAuthor
	}
	return out
}
