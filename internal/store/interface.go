package store

import (
	"context"
	"errors"

	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"
)

var (
	ErrNotFound = errors.New("article not found")
	// ErrConflict is returned when a write races another write on the same
	// url, e.g. two concurrent creates of one page.
	ErrConflict = errors.New("article conflict")
)

type Store interface {
	pagination.Lister

	// Create inserts a new article and assigns its ID and CreatedAt.
	Create(ctx context.Context, article *model.Article) error
	// Update replaces the stored content of article.ID, marks it unread
	// and refreshes CreatedAt.
	Update(ctx context.Context, article *model.Article) error
	Get(ctx context.Context, id int64) (*model.Article, error)
	GetByURL(ctx context.Context, url string) (*model.Article, error)
	Delete(ctx context.Context, id int64) error

	ToggleRead(ctx context.Context, id int64) (*model.Article, error)
	ToggleFavorite(ctx context.Context, id int64) (*model.Article, error)
	RandomFavorite(ctx context.Context) (*model.Article, error)

	Close()
}

var (
	_ Store = (*HybridStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
