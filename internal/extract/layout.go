package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/atom"
)

// Extractors wrap article text in generic layout elements (Readability's
// page div, SmartEditor's nested divs and spans). The sanitizer drops
// unknown elements together with their children, so layout wrappers are
// rewritten first: block containers become <section>, inline wrappers are
// replaced by their children. Everything else is left for the sanitizer.
const (
	blockContainers = "div, main, header, footer, center"
	inlineWrappers  = "span, font, small, mark, time, abbr, cite, q, sub, sup, ins, label, picture"
)

// normalizeLayout rewrites layout wrappers in an HTML fragment.
func normalizeLayout(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	body := doc.Find("body")

	body.Find(blockContainers).Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		n.Data = "section"
		n.DataAtom = atom.Section
	})
	body.Find(inlineWrappers).Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})

	out, err := body.Html()
	if err != nil {
		return fragment
	}
	return out
}
