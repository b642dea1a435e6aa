// Package events publishes article lifecycle messages.
package events

import (
	"context"
	"time"

	"crusty-reader/internal/model"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// ArticleMessage is the body of a published event. Content is not included.
type ArticleMessage struct {
	Action    string        `json:"action"`
	Article   model.Article `json:"article"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewArticleMessage builds the event for a saved article.
func NewArticleMessage(article *model.Article, isNew bool) ArticleMessage {
	action := ActionUpdate
	if isNew {
		action = ActionCreate
	}
	a := *article
	a.Content = ""
	return ArticleMessage{Action: action, Article: a, Timestamp: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, article *model.Article, isNew bool) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *model.Article, bool) error { return nil }

func (Nop) Close() error { return nil }
