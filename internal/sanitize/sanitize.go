// Package sanitize defuses untrusted article HTML with a tag and attribute
// allow-list. Output is safe to render without further escaping.
package sanitize

import (
	"io"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var allowedTags = lo.SliceToMap([]string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "br", "strong", "em", "b", "i", "u", "s",
	"ul", "ol", "li",
	"a", "img",
	"code", "pre", "blockquote",
	"article", "section", "aside", "figure", "figcaption",
}, func(t string) (string, struct{}) { return t, struct{}{} })

var allowedAttrs = lo.SliceToMap([]string{
	"href", "src", "alt", "title", "class",
}, func(a string) (string, struct{}) { return a, struct{}{} })

var blockedSchemes = []string{"javascript:", "vbscript:", "data:"}

// safeURL accepts http(s)/mailto and anything without a scheme.
var safeURL = regexp.MustCompile(`(?i)^(?:(?:https?|mailto):|[^a-z]|[a-z+.-]+(?:[^a-z+.\-:]|$))`)

// voidTags are the allowed elements that have no closing tag.
var voidTags = map[string]bool{"br": true, "img": true}

// parseFragment is swapped in tests to exercise the fail-closed path.
var parseFragment = func(r io.Reader, context *html.Node) ([]*html.Node, error) {
	return html.ParseFragment(r, context)
}

// maxPasses bounds the re-parse loop in HTML. Each pass can only split
// nestings the parser refuses to rebuild, so real input settles in two.
const maxPasses = 4

// HTML returns the allow-listed subset of s. It never fails: if s cannot be
// parsed or serialized the result is empty.
//
// The cleaned tree can hold nestings the parser would never produce (an
// element adopted out of a dropped table), so the result is re-sanitized
// until it is a fixed point. Output that does not settle is dropped, and
// so is output that is only whitespace.
func HTML(s string) (out string) {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()

	out, ok := pass(s)
	for i := 1; ok && i < maxPasses; i++ {
		next, nextOK := pass(out)
		if !nextOK {
			return ""
		}
		if next == out {
			if strings.TrimSpace(out) == "" {
				return ""
			}
			return out
		}
		out = next
	}
	return ""
}

// pass parses s once, cleans the tree and serializes it.
func pass(s string) (string, bool) {
	if s == "" {
		return "", true
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := parseFragment(strings.NewReader(s), body)
	if err != nil {
		return "", false
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		body.AppendChild(n)
	}

	clean(body)

	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		render(&b, c)
	}
	return b.String(), true
}

// clean walks n depth-first. A child is finished (its own subtree cleaned)
// before its attributes are filtered.
func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.TextNode:
		case html.ElementNode:
			if _, ok := allowedTags[c.Data]; !ok || c.Namespace != "" {
				n.RemoveChild(c)
				break
			}
			clean(c)
			c.Attr = filterAttrs(c.Attr)
			if voidTags[c.Data] {
				for c.FirstChild != nil {
					c.RemoveChild(c.FirstChild)
				}
			}
		default:
			n.RemoveChild(c)
		}
		c = next
	}
}

func filterAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || strings.HasPrefix(key, "on") {
			continue
		}
		if _, ok := allowedAttrs[key]; !ok {
			continue
		}
		if (key == "href" || key == "src") && !SafeURL(a.Val) {
			continue
		}
		a.Key = key
		kept = append(kept, a)
	}
	return kept
}

// SafeURL reports whether v may be used as an href or src value.
func SafeURL(v string) bool {
	// Browsers ignore ASCII whitespace and control characters inside a
	// scheme, so "java\tscript:" must be caught as well.
	compact := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, strings.ToLower(v))
	for _, s := range blockedSchemes {
		if strings.HasPrefix(compact, s) {
			return false
		}
	}
	return safeURL.MatchString(compact)
}

// render serializes a cleaned tree. Only allow-listed elements and text
// nodes remain, so no raw-text or foreign-content rules apply.
func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
	default:
		return
	}

	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	if voidTags[n.Data] {
		return
	}
	// The parser drops one newline directly after <pre>.
	if n.Data == "pre" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode &&
		strings.HasPrefix(n.FirstChild.Data, "\n") {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	b.WriteString("</")
	b.WriteString(n.Data)
	b.WriteByte('>')
}
