package ingest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"crusty-reader/internal/fetch"
	"crusty-reader/internal/model"
	"crusty-reader/internal/site"
)

type Repository interface {
	GetByURL(ctx context.Context, url string) (*model.Article, error)
	Create(ctx context.Context, article *model.Article) error
	Update(ctx context.Context, article *model.Article) error
}

type Acquirer interface {
	Acquire(ctx context.Context, rawURL string, fam *site.Family) (*fetch.Acquisition, error)
}

type Extractor interface {
	Extract(ctx context.Context, acq *fetch.Acquisition) (*model.ExtractedContent, error)
}

type Publisher interface {
	Publish(ctx context.Context, article *model.Article, isNew bool) error
}
