package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

const (
	keySeq      = "article:seq"
	keyAll      = "articles:all"
	keyUnread   = "articles:unread"
	keyFavorite = "articles:favorites"
)

func metaKey(id int64) string { return fmt.Sprintf("article:%d", id) }

func urlKey(url string) string { return "article:url:" + url }

func contentKey(id int64) []byte { return []byte(fmt.Sprintf("content:%d", id)) }

func listKey(p pagination.Predicate) string {
	switch p {
	case pagination.Unread:
		return keyUnread
	case pagination.Favorites:
		return keyFavorite
	}
	return keyAll
}

// member is the sorted-set entry of an article. All entries share score 0
// and fixed-width fields, so lexicographic order is (CreatedAt, ID) order.
func member(ts time.Time, id int64) string {
	return fmt.Sprintf("%020d:%020d", ts.UnixNano(), id)
}

func memberID(m string) (int64, error) {
	_, id, ok := strings.Cut(m, ":")
	if !ok {
		return 0, fmt.Errorf("malformed index entry %q", m)
	}
	return strconv.ParseInt(id, 10, 64)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// HybridStore combines Redis (metadata, indexes, queue) and Badger (content).
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
}

// NewHybridStore initializes databases.
// Pass badgerPath="" to run in "Redis-Only" mode (for CLI tools).
func NewHybridStore(redisAddr string, badgerPath string) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	var err error

	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil // Silence default logger
		db, err = badger.Open(opts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return &HybridStore{rdb: rdb, db: db}, nil
}

// Close cleans up connections
func (s *HybridStore) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// Jobs returns the ingestion queue backed by the same Redis connection.
func (s *HybridStore) Jobs() *JobQueue {
	return &JobQueue{rdb: s.rdb}
}

func (s *HybridStore) checkContent(a *model.Article) error {
	if a.Content != "" && s.db == nil {
		return fmt.Errorf("cannot save content: badgerdb is not initialized")
	}
	return nil
}

// Create claims the url, assigns an id and writes metadata to Redis and
// content to Badger.
func (s *HybridStore) Create(ctx context.Context, article *model.Article) error {
	if err := s.checkContent(article); err != nil {
		return err
	}

	id, err := s.rdb.Incr(ctx, keySeq).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate id: %w", err)
	}
	claimed, err := s.rdb.SetNX(ctx, urlKey(article.URL), id, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim url: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: %s already saved", ErrConflict, article.URL)
	}

	a := *article
	a.ID = id
	a.CreatedAt = now()

	if err := s.putContent(id, a.Content); err != nil {
		s.rdb.Del(ctx, urlKey(a.URL))
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return writeMeta(ctx, pipe, nil, &a)
	})
	if err != nil {
		s.rdb.Del(ctx, urlKey(a.URL))
		return fmt.Errorf("failed to save article: %w", err)
	}

	*article = a
	return nil
}

// Update replaces the content of an existing article. The article becomes
// unread and moves to the top of every list. Content is written first, so a
// failed write leaves the stored metadata untouched.
func (s *HybridStore) Update(ctx context.Context, article *model.Article) error {
	if err := s.checkContent(article); err != nil {
		return err
	}
	if _, err := readMeta(ctx, s.rdb, article.ID); err != nil {
		return err
	}
	if err := s.putContent(article.ID, article.Content); err != nil {
		return err
	}
	updated, err := s.mutate(ctx, article.ID, func(a *model.Article) {
		fav := a.IsFavorite
		url := a.URL
		*a = *article
		a.URL = url
		a.IsFavorite = fav
		a.IsRead = false
		a.ReadAt = nil
		a.CreatedAt = now()
	})
	if errors.Is(err, ErrNotFound) {
		// deleted while the content was written
		_ = s.putContent(article.ID, "")
	}
	if err != nil {
		return err
	}
	updated.Content = article.Content
	*article = *updated
	return nil
}

// ToggleRead flips IsRead and stamps or clears ReadAt.
func (s *HybridStore) ToggleRead(ctx context.Context, id int64) (*model.Article, error) {
	return s.mutate(ctx, id, func(a *model.Article) {
		a.IsRead = !a.IsRead
		a.ReadAt = nil
		if a.IsRead {
			t := now()
			a.ReadAt = &t
		}
	})
}

func (s *HybridStore) ToggleFavorite(ctx context.Context, id int64) (*model.Article, error) {
	return s.mutate(ctx, id, func(a *model.Article) {
		a.IsFavorite = !a.IsFavorite
	})
}

// mutate applies fn to the stored metadata of id under WATCH and
// re-indexes the article.
func (s *HybridStore) mutate(ctx context.Context, id int64, fn func(*model.Article)) (*model.Article, error) {
	var out *model.Article
	key := metaKey(id)

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		old, err := readMeta(ctx, tx, id)
		if err != nil {
			return err
		}
		a := *old
		fn(&a)
		a.Content = ""

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return writeMeta(ctx, pipe, old, &a)
		})
		out = &a
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: article %d changed concurrently", ErrConflict, id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// writeMeta queues the metadata write and index moves for a. old is the
// previous state, nil on create.
func writeMeta(ctx context.Context, pipe redis.Pipeliner, old, a *model.Article) error {
	meta := *a
	meta.Content = ""
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	pipe.Set(ctx, metaKey(a.ID), data, 0)

	if old != nil {
		m := member(old.CreatedAt, old.ID)
		pipe.ZRem(ctx, keyAll, m)
		pipe.ZRem(ctx, keyUnread, m)
		pipe.ZRem(ctx, keyFavorite, m)
	}
	z := redis.Z{Score: 0, Member: member(a.CreatedAt, a.ID)}
	pipe.ZAdd(ctx, keyAll, z)
	if !a.IsRead {
		pipe.ZAdd(ctx, keyUnread, z)
	}
	if a.IsFavorite {
		pipe.ZAdd(ctx, keyFavorite, z)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readMeta(ctx context.Context, c getter, id int64) (*model.Article, error) {
	val, err := c.Get(ctx, metaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var a model.Article
	if err := json.Unmarshal(val, &a); err != nil {
		return nil, fmt.Errorf("failed to decode article %d: %w", id, err)
	}
	return &a, nil
}

func (s *HybridStore) putContent(id int64, content string) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if content == "" {
			return txn.Delete(contentKey(id))
		}
		return txn.Set(contentKey(id), []byte(content))
	})
	if err != nil {
		return fmt.Errorf("failed to save content: %w", err)
	}
	return nil
}

// Get combines data: Metadata from Redis + Content from Badger
func (s *HybridStore) Get(ctx context.Context, id int64) (*model.Article, error) {
	article, err := readMeta(ctx, s.rdb, id)
	if err != nil {
		return nil, err
	}

	// Fetch Content from Badger (if available AND configured)
	if s.db != nil {
		err = s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(contentKey(id))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				article.Content = string(val)
				return nil
			})
		})

		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, err
		}
	}

	return article, nil
}

func (s *HybridStore) GetByURL(ctx context.Context, url string) (*model.Article, error) {
	id, err := s.rdb.Get(ctx, urlKey(url)).Int64()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *HybridStore) Delete(ctx context.Context, id int64) error {
	a, err := readMeta(ctx, s.rdb, id)
	if err != nil {
		return err
	}

	m := member(a.CreatedAt, a.ID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, metaKey(id), urlKey(a.URL))
		pipe.ZRem(ctx, keyAll, m)
		pipe.ZRem(ctx, keyUnread, m)
		pipe.ZRem(ctx, keyFavorite, m)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}

	if s.db != nil {
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(contentKey(id))
		})
		if err != nil {
			return fmt.Errorf("failed to delete content: %w", err)
		}
	}
	return nil
}

// ListAfter reads up to n articles of pred strictly after cursor, newest
// first. Content is not loaded. Index entries whose metadata is gone are
// removed and the page is topped up from further down the index.
func (s *HybridStore) ListAfter(ctx context.Context, pred pagination.Predicate, cursor *pagination.Cursor, n int) ([]model.Article, error) {
	key := listKey(pred)
	upper := "+"
	if cursor != nil {
		upper = "(" + member(cursor.Timestamp, cursor.ID)
	}

	articles := make([]model.Article, 0, n)
	for len(articles) < n {
		want := n - len(articles)
		members, err := s.rdb.ZRevRangeByLex(ctx, key, &redis.ZRangeBy{
			Min:   "-",
			Max:   upper,
			Count: int64(want),
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			break
		}

		keys := make([]string, 0, len(members))
		for _, m := range members {
			id, err := memberID(m)
			if err != nil {
				return nil, err
			}
			keys = append(keys, metaKey(id))
		}
		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}

		var stale []any
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				// deleted between the range and the read
				stale = append(stale, members[i])
				continue
			}
			var a model.Article
			if err := json.Unmarshal([]byte(raw), &a); err == nil {
				articles = append(articles, a)
			}
		}
		if len(stale) > 0 {
			// ids are never reused, so a member without metadata is dead
			if err := s.rdb.ZRem(ctx, key, stale...).Err(); err != nil {
				return nil, err
			}
		}

		if len(members) < want {
			break
		}
		upper = "(" + members[len(members)-1]
	}
	return articles, nil
}

// RandomFavorite picks a uniformly random favorite.
func (s *HybridStore) RandomFavorite(ctx context.Context) (*model.Article, error) {
	n, err := s.rdb.ZCard(ctx, keyFavorite).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	i := rand.Int64N(n)
	members, err := s.rdb.ZRange(ctx, keyFavorite, i, i).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}
	id, err := memberID(members[0])
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
