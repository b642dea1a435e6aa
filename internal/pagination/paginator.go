// Package pagination implements keyset paging over articles ordered by
// (CreatedAt desc, ID desc).
package pagination

import (
	"context"
	"fmt"

	"crusty-reader/internal/model"

	"go.uber.org/zap"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Predicate selects which articles a list contains.
type Predicate string

const (
	All       Predicate = "all"
	Unread    Predicate = "unread"
	Favorites Predicate = "favorites"
)

// ParsePredicate maps a list name to a Predicate.
func ParsePredicate(s string) (Predicate, error) {
	switch p := Predicate(s); p {
	case All, Unread, Favorites:
		return p, nil
	}
	return "", fmt.Errorf("unknown list %q", s)
}

// Match reports whether a belongs to the list.
func (p Predicate) Match(a model.Article) bool {
	switch p {
	case Unread:
		return !a.IsRead
	case Favorites:
		return a.IsFavorite
	}
	return true
}

// Lister returns up to n articles matching pred, positioned strictly after
// cursor (or from the newest when cursor is nil), in (CreatedAt desc, ID desc)
// order.
type Lister interface {
	ListAfter(ctx context.Context, pred Predicate, cursor *Cursor, n int) ([]model.Article, error)
}

// Page is one slice of a list.
type Page struct {
	Items      []model.Article `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

type Paginator struct {
	lister Lister
	logger *zap.Logger
}

func NewPaginator(lister Lister, logger *zap.Logger) *Paginator {
	return &Paginator{lister: lister, logger: logger}
}

// ClampLimit maps limit into [1, MaxLimit]; non-positive means DefaultLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Page returns the page of pred after cursor. An empty cursor starts at the
// newest article.
func (p *Paginator) Page(ctx context.Context, pred Predicate, cursor string, limit int) (*Page, error) {
	limit = ClampLimit(limit)

	var after *Cursor
	if cursor != "" {
		c, err := Parse(cursor)
		if err != nil {
			return nil, err
		}
		after = &c
	}

	rows, err := p.lister.ListAfter(ctx, pred, after, limit+1)
	if err != nil {
		p.logger.Error("List query failed", zap.String("list", string(pred)), zap.Error(err))
		return nil, fmt.Errorf("failed to list %s articles: %w", pred, err)
	}

	page := &Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		page.NextCursor = After(page.Items[limit-1]).String()
	}
	if page.Items == nil {
		page.Items = []model.Article{}
	}
	return page, nil
}
