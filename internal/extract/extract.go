// Package extract turns fetched pages into sanitized article content using
// an ordered list of strategies.
package extract

import (
	"context"
	"errors"
	"fmt"

	"crusty-reader/internal/fetch"
	"crusty-reader/internal/model"
	"crusty-reader/internal/sanitize"

	"go.uber.org/zap"
)

var (
	// ErrExtractionFailed means no strategy produced usable content.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrNotApplicable is returned by a strategy that does not handle the page.
	ErrNotApplicable = errors.New("strategy not applicable")
)

// Untitled is used when no title can be found.
const Untitled = "Untitled"

// Draft is the unsanitized output of a strategy.
type Draft struct {
	Title         string
	HTML          string
	Text          string
	Excerpt       string
	Author        *string
	SiteName      *string
	PublishedTime *string
}

// Strategy extracts a Draft from an acquisition.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, acq *fetch.Acquisition) (*Draft, error)
}

// Selector runs strategies in order and keeps the first success.
type Selector struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewSelector returns the default chain: site-specific, then generic.
func NewSelector(logger *zap.Logger) *Selector {
	return NewSelectorWith(logger, &SiteStrategy{}, &GenericStrategy{})
}

// NewSelectorWith builds a Selector over a custom strategy list.
func NewSelectorWith(logger *zap.Logger, strategies ...Strategy) *Selector {
	return &Selector{strategies: strategies, logger: logger}
}

// Extract returns sanitized content for acq.
func (s *Selector) Extract(ctx context.Context, acq *fetch.Acquisition) (*model.ExtractedContent, error) {
	logger := s.logger.With(zap.String("url", acq.URL))
	reason := errors.New("no readable content found")

	for _, st := range s.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		draft, err := st.Extract(ctx, acq)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			logger.Debug("Strategy failed", zap.String("strategy", st.Name()), zap.Error(err))
			reason = err
			continue
		}
		logger.Debug("Strategy succeeded", zap.String("strategy", st.Name()))
		return build(draft), nil
	}

	logger.Warn("Extraction failed", zap.String("phase", "extract"), zap.Error(reason))
	if errors.Is(reason, ErrExtractionFailed) {
		return nil, reason
	}
	return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, reason)
}

// build is the only way a Draft becomes ExtractedContent, so content is
// always sanitized.
func build(d *Draft) *model.ExtractedContent {
	title := d.Title
	if title == "" {
		title = Untitled
	}
	excerpt := d.Excerpt
	if excerpt == "" {
		excerpt = d.Text
	}
	wc := WordCount(d.Text)
	return &model.ExtractedContent{
		Title:         title,
		Content:       sanitize.HTML(d.HTML),
		Excerpt:       Excerpt(excerpt),
		Author:        d.Author,
		SiteName:      d.SiteName,
		PublishedTime: d.PublishedTime,
		WordCount:     wc,
		ReadingTime:   model.ReadingTime(wc),
	}
}
