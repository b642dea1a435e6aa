package model

import (
	"time"
)

// WordsPerMinute is the reading speed used for ReadingTime.
const WordsPerMinute = 200

// MaxExcerptLength is the upper bound, in runes, of an Excerpt.
const MaxExcerptLength = 300

// Article represents a saved web page.
type Article struct {
	ID            int64      `json:"id" db:"id"`
	URL           string     `json:"url" db:"url"`
	Title         string     `json:"title" db:"title"`
	Content       string     `json:"content,omitempty" db:"content"`
	Excerpt       string     `json:"excerpt" db:"excerpt"`
	Author        *string    `json:"author" db:"author"`
	SiteName      *string    `json:"site_name" db:"site_name"`
	PublishedTime *string    `json:"published_time" db:"published_time"`
	WordCount     int        `json:"word_count" db:"word_count"`
	ReadingTime   int        `json:"reading_time" db:"reading_time"`
	IsRead        bool       `json:"is_read" db:"is_read"`
	IsFavorite    bool       `json:"is_favorite" db:"is_favorite"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// ExtractedContent is the outcome of a single extraction run. Content is
// always sanitized HTML.
type ExtractedContent struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Excerpt       string  `json:"excerpt"`
	Author        *string `json:"author"`
	SiteName      *string `json:"site_name"`
	PublishedTime *string `json:"published_time"`
	WordCount     int     `json:"word_count"`
	ReadingTime   int     `json:"reading_time"`
}

// NewArticle builds an unsaved, unread article for url from extracted content.
func NewArticle(url string, c *ExtractedContent) Article {
	a := Article{URL: url}
	a.Apply(c)
	return a
}

// Apply replaces the content-bearing fields of a with c.
func (a *Article) Apply(c *ExtractedContent) {
	a.Title = c.Title
	a.Content = c.Content
	a.Excerpt = c.Excerpt
	a.Author = c.Author
	a.SiteName = c.SiteName
	a.PublishedTime = c.PublishedTime
	a.WordCount = c.WordCount
	a.ReadingTime = ReadingTime(c.WordCount)
}

// ReadingTime returns the estimated reading time in minutes, never less than one.
func ReadingTime(wordCount int) int {
	if wordCount <= 0 {
		return 1
	}
	return max(1, (wordCount+WordsPerMinute-1)/WordsPerMinute)
}
