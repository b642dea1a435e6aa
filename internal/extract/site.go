package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"crusty-reader/internal/fetch"
	"crusty-reader/internal/site"

	"github.com/PuerkitoBio/goquery"
)

// MinSiteContentLength is the text length, in runes, a selector match must
// exceed. Shorter matches are usually sidebar widgets.
const MinSiteContentLength = 100

// SiteStrategy extracts content using the selectors of a known site family.
// The canonical page is tried before the original one.
type SiteStrategy struct{}

func (SiteStrategy) Name() string { return "site" }

func (SiteStrategy) Extract(_ context.Context, acq *fetch.Acquisition) (*Draft, error) {
	fam := acq.Family
	if !fam.HasSelectors() {
		return nil, ErrNotApplicable
	}

	for _, page := range []*fetch.RawPage{acq.Canonical, acq.Original} {
		if page == nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			continue
		}
		if d := extractFamily(fam, doc); d != nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s content container found", ErrExtractionFailed, fam.Name)
}

func extractFamily(fam *site.Family, doc *goquery.Document) *Draft {
	for _, sel := range fam.ContentSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		bare := el.Clone()
		bare.Find("script, style, noscript").Remove()
		text := strings.TrimSpace(bare.Text())
		if utf8.RuneCountInString(text) <= MinSiteContentLength {
			continue
		}
		inner, err := el.Html()
		if err != nil {
			continue
		}
		return &Draft{
			Title:         siteTitle(fam, doc),
			HTML:          normalizeLayout(inner),
			Text:          text,
			SiteName:      strPtr(fam.SiteName),
			PublishedTime: PublishedTime(doc),
		}
	}
	return nil
}

func siteTitle(fam *site.Family, doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}
	for _, sel := range fam.TitleSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
