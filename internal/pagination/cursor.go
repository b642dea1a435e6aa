package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crusty-reader/internal/model"
)

// ErrInvalidCursor is returned for any cursor string that does not decode
// to a (timestamp, id) pair.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor pins a position in (CreatedAt desc, ID desc) order. Rows strictly
// after the cursor are those with an older timestamp, or the same timestamp
// and a smaller id.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}

// After returns the cursor positioned at a.
func After(a model.Article) Cursor {
	return Cursor{Timestamp: a.CreatedAt, ID: a.ID}
}

// String encodes c as base64url("<unix-nanos>:<id>") without padding.
func (c Cursor) String() string {
	raw := strconv.FormatInt(c.Timestamp.UnixNano(), 10) + ":" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Parse decodes a cursor produced by Cursor.String.
func Parse(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Cursor{}, fmt.Errorf("%w: bad id", ErrInvalidCursor)
	}
	return Cursor{Timestamp: time.Unix(0, nanos).UTC(), ID: n}, nil
}

// Before reports whether a sorts strictly after the cursor position.
func (c Cursor) Before(a model.Article) bool {
	if a.CreatedAt.Equal(c.Timestamp) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.Timestamp)
}
