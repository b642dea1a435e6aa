package extract

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"crusty-reader/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// publishedTimeSelectors are checked in order for a parseable date.
var publishedTimeSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[property="og:article:published_time"]`,
	`meta[name="citation_date"]`,
	`meta[name="date"]`,
}

// WordCount counts whitespace separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Excerpt collapses whitespace and cuts text to model.MaxExcerptLength runes.
func Excerpt(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(cleaned) <= model.MaxExcerptLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:model.MaxExcerptLength-3]) + "..."
}

// PublishedTime returns the first parseable meta date in RFC 3339 UTC.
func PublishedTime(doc *goquery.Document) *string {
	for _, sel := range publishedTimeSelectors {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		t, err := dateparse.ParseAny(content)
		if err != nil {
			continue
		}
		s := t.UTC().Format(time.RFC3339)
		return &s
	}
	return nil
}

// SiteDomain returns the lowercased host of rawURL without a www. prefix.
func SiteDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
