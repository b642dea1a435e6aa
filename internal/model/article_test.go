package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadingTime(t *testing.T) {
	cases := map[int]int{
		-5:  1,
		0:   1,
		1:   1,
		199: 1,
		200: 1,
		201: 2,
		400: 2,
		401: 3,
	}
	for words, want := range cases {
		assert.Equal(t, want, ReadingTime(words), "words=%d", words)
	}
}

func TestReadingTime_NeverBelowOne(t *testing.T) {
	for words := 0; words < 5000; words += 37 {
		assert.GreaterOrEqual(t, ReadingTime(words), 1)
	}
}

func TestNewArticle_AppliesContent(t *testing.T) {
	author := "Jane"
	c := &ExtractedContent{
		Title:       "Hello",
		Content:     "<p>Hi</p>",
		Excerpt:     "Hi",
		Author:      &author,
		WordCount:   450,
		ReadingTime: 99,
	}

	a := NewArticle("https://example.com/a", c)

	assert.Equal(t, "https://example.com/a", a.URL)
	assert.Equal(t, "Hello", a.Title)
	assert.Equal(t, "<p>Hi</p>", a.Content)
	assert.Equal(t, &author, a.Author)
	assert.Equal(t, 450, a.WordCount)
	assert.Equal(t, 3, a.ReadingTime, "reading time is derived from word count")
	assert.False(t, a.IsRead)
}
