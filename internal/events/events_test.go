package events

import (
	"context"
	"testing"

	"crusty-reader/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestNewArticleMessage(t *testing.T) {
	a := &model.Article{ID: 3, Title: "T", Content: "<p>body</p>"}

	msg := NewArticleMessage(a, true)
	assert.Equal(t, ActionCreate, msg.Action)
	assert.Equal(t, int64(3), msg.Article.ID)
	assert.Empty(t, msg.Article.Content)
	assert.Equal(t, "<p>body</p>", a.Content, "caller's article is not modified")
	assert.False(t, msg.Timestamp.IsZero())

	assert.Equal(t, ActionUpdate, NewArticleMessage(a, false).Action)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), &model.Article{}, true))
	assert.NoError(t, p.Close())
}
