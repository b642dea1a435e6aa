// Package ingest saves a submitted URL as an article: normalize, acquire,
// extract, store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"crusty-reader/internal/model"
	"crusty-reader/internal/site"
	"crusty-reader/internal/store"
	"crusty-reader/internal/urlnorm"

	"go.uber.org/zap"
)

const (
	phaseNormalize = "normalize"
	phaseAcquire   = "acquire"
	phaseExtract   = "extract"
	phaseStore     = "store"
)

type Pipeline struct {
	repo      Repository
	acquirer  Acquirer
	extractor Extractor
	publisher Publisher
	logger    *zap.Logger
}

func NewPipeline(repo Repository, acquirer Acquirer, extractor Extractor, publisher Publisher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		acquirer:  acquirer,
		extractor: extractor,
		publisher: publisher,
		logger:    logger,
	}
}

// Save ingests rawURL. It returns the stored article and whether it was
// newly created; re-submitting a known URL refreshes it in place.
func (p *Pipeline) Save(ctx context.Context, rawURL string) (*model.Article, bool, error) {
	logger := p.logger.With(zap.String("url", rawURL))

	normalized, err := urlnorm.Normalize(rawURL)
	if err != nil {
		logger.Info("Rejected url", zap.String("phase", phaseNormalize), zap.Error(err))
		return nil, false, err
	}
	logger = p.logger.With(zap.String("url", normalized))
	fam := site.Lookup(normalized)

	acq, err := p.acquirer.Acquire(ctx, normalized, fam)
	if err != nil {
		logger.Warn("Acquisition failed", zap.String("phase", phaseAcquire), zap.Error(err))
		return nil, false, err
	}

	content, err := p.extractor.Extract(ctx, acq)
	if err != nil {
		logger.Warn("Extraction failed", zap.String("phase", phaseExtract), zap.Error(err))
		return nil, false, err
	}

	article, isNew, err := p.store(ctx, normalized, content)
	if err != nil {
		logger.Error("Failed to store article", zap.String("phase", phaseStore), zap.Error(err))
		return nil, false, err
	}

	if err := p.publisher.Publish(ctx, article, isNew); err != nil {
		// the article is saved; a lost event is not a failed ingest
		logger.Warn("Failed to publish event", zap.Int64("article_id", article.ID), zap.Error(err))
	}

	logger.Info("Article saved",
		zap.Int64("article_id", article.ID),
		zap.Bool("new", isNew),
		zap.String("title", article.Title),
		zap.Int("word_count", article.WordCount))
	return article, isNew, nil
}

func (p *Pipeline) store(ctx context.Context, url string, content *model.ExtractedContent) (*model.Article, bool, error) {
	existing, err := p.repo.GetByURL(ctx, url)
	switch {
	case err == nil:
		return p.refresh(ctx, existing, content)
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up url: %w", err)
	}

	article := model.NewArticle(url, content)
	err = p.repo.Create(ctx, &article)
	if err == nil {
		return &article, true, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, false, fmt.Errorf("failed to create article: %w", err)
	}

	// a concurrent submission inserted the url first
	existing, err = p.repo.GetByURL(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up url after conflict: %w", err)
	}
	return p.refresh(ctx, existing, content)
}

func (p *Pipeline) refresh(ctx context.Context, existing *model.Article, content *model.ExtractedContent) (*model.Article, bool, error) {
	article := *existing
	article.Apply(content)
	if err := p.repo.Update(ctx, &article); err != nil {
		return nil, false, fmt.Errorf("failed to update article: %w", err)
	}
	return &article, false, nil
}
