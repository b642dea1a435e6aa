package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"crusty-reader/internal/fetch"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// GenericStrategy runs Readability over the original page.
type GenericStrategy struct{}

func (GenericStrategy) Name() string { return "readability" }

func (GenericStrategy) Extract(_ context.Context, acq *fetch.Acquisition) (*Draft, error) {
	page := acq.Original
	if page == nil {
		return nil, fmt.Errorf("%w: no page fetched", ErrExtractionFailed)
	}
	pageURL, err := url.Parse(page.URL)
	if err != nil || page.URL == "" {
		pageURL, err = url.Parse(acq.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
	}

	article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: no readable content found: %v", ErrExtractionFailed, err)
	}
	if strings.TrimSpace(article.TextContent) == "" || strings.TrimSpace(article.Content) == "" {
		return nil, fmt.Errorf("%w: no readable content found", ErrExtractionFailed)
	}

	siteName := strings.TrimSpace(article.SiteName)
	if siteName == "" {
		siteName = SiteDomain(acq.URL)
	}

	var published *string
	if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
		s := article.PublishedTime.UTC().Format(time.RFC3339)
		published = &s
	} else if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); err == nil {
		published = PublishedTime(doc)
	}

	return &Draft{
		Title:         strings.TrimSpace(article.Title),
		HTML:          normalizeLayout(article.Content),
		Text:          article.TextContent,
		Excerpt:       article.Excerpt,
		Author:        strPtr(strings.TrimSpace(article.Byline)),
		SiteName:      &siteName,
		PublishedTime: published,
	}, nil
}
