package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestStore wires a HybridStore to miniredis and an in-memory Badger.
// Fields are set directly to avoid creating real files for Badger.
func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	s := &HybridStore{
		rdb: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		db:  db,
	}
	t.Cleanup(s.Close)
	return s, mr
}

func newArticle(url string) *model.Article {
	a := model.NewArticle(url, &model.ExtractedContent{
		Title:     "Test Article",
		Content:   "<h1>Big Content</h1>",
		Excerpt:   "Big Content",
		WordCount: 2,
	})
	return &a
}

func TestHybridStore_CreateAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	article := newArticle("https://example.com/")
	require.NoError(t, store.Create(ctx, article))
	assert.Equal(t, int64(1), article.ID)
	assert.False(t, article.CreatedAt.IsZero())

	// Metadata lives in Redis without the heavy content
	val, err := mr.Get("article:1")
	require.NoError(t, err, "Should find article metadata in Redis")
	var meta model.Article
	require.NoError(t, json.Unmarshal([]byte(val), &meta))
	assert.Equal(t, "Test Article", meta.Title)
	assert.Empty(t, meta.Content, "Redis should NOT store the heavy content")

	// Content lives in Badger
	err = store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("content:1"))
		if err != nil {
			return err
		}
		v, _ := item.ValueCopy(nil)
		assert.Equal(t, "<h1>Big Content</h1>", string(v))
		return nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, article.URL, got.URL)
	assert.Equal(t, "<h1>Big Content</h1>", got.Content)
	assert.True(t, article.CreatedAt.Equal(got.CreatedAt))

	byURL, err := store.GetByURL(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byURL.ID)
}

func TestHybridStore_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetByURL(ctx, "https://nowhere.example/")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 7), ErrNotFound)
	_, err = store.ToggleRead(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.RandomFavorite(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHybridStore_CreateConflict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newArticle("https://example.com/a")))
	err := store.Create(ctx, newArticle("https://example.com/a"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHybridStore_ConcurrentCreateOneWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, newArticle("https://example.com/race"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestHybridStore_UpdateResetsReadAndRefreshesOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := newArticle("https://example.com/1")
	require.NoError(t, store.Create(ctx, first))
	second := newArticle("https://example.com/2")
	require.NoError(t, store.Create(ctx, second))

	_, err := store.ToggleRead(ctx, first.ID)
	require.NoError(t, err)
	_, err = store.ToggleFavorite(ctx, first.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	upd := model.NewArticle("https://example.com/1", &model.ExtractedContent{Title: "Fresh", Content: "<p>new</p>", WordCount: 1})
	upd.ID = first.ID
	require.NoError(t, store.Update(ctx, &upd))

	assert.Equal(t, "Fresh", upd.Title)
	assert.False(t, upd.IsRead)
	assert.Nil(t, upd.ReadAt)
	assert.True(t, upd.IsFavorite, "favorite flag survives a refresh")
	assert.True(t, upd.CreatedAt.After(first.CreatedAt))

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>new</p>", got.Content)

	all, err := store.ListAfter(ctx, pagination.All, nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "refreshed article moves to the top")

	unread, err := store.ListAfter(ctx, pagination.Unread, nil, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := store.rdb.ZCard(ctx, keyAll).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "old index entry is removed")
}

func TestHybridStore_Toggles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := newArticle("https://example.com/t")
	require.NoError(t, store.Create(ctx, a))

	read, err := store.ToggleRead(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	unread, err := store.ListAfter(ctx, pagination.Unread, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	read, err = store.ToggleRead(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, read.IsRead)
	assert.Nil(t, read.ReadAt)

	fav, err := store.ToggleFavorite(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, fav.IsFavorite)

	random, err := store.RandomFavorite(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, random.ID)
	assert.Equal(t, "<h1>Big Content</h1>", random.Content)

	// content is untouched by flag changes
	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Big Content</h1>", got.Content)
}

func TestHybridStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := newArticle("https://example.com/d")
	require.NoError(t, store.Create(ctx, a))
	_, err := store.ToggleFavorite(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, a.ID))

	_, err = store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetByURL(ctx, a.URL)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, p := range []pagination.Predicate{pagination.All, pagination.Unread, pagination.Favorites} {
		rows, err := store.ListAfter(ctx, p, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, rows, string(p))
	}

	// the url can be saved again
	require.NoError(t, store.Create(ctx, newArticle("https://example.com/d")))
}

func TestHybridStore_PaginatesTwentyFive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, store.Create(ctx, newArticle("https://example.com/p/"+string(rune('a'+i)))))
	}

	p := pagination.NewPaginator(store, zap.NewNop())
	first, err := p.Page(ctx, pagination.All, "", 20)
	require.NoError(t, err)
	assert.Len(t, first.Items, 20)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(25), first.Items[0].ID)
	assert.Empty(t, first.Items[0].Content, "lists do not load content")

	second, err := p.Page(ctx, pagination.All, first.NextCursor, 20)
	require.NoError(t, err)
	assert.Len(t, second.Items, 5)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, int64(1), second.Items[4].ID)

	seen := map[int64]bool{}
	for _, a := range append(first.Items, second.Items...) {
		assert.False(t, seen[a.ID], "duplicate %d", a.ID)
		seen[a.ID] = true
	}
	assert.Len(t, seen, 25)
}

func TestHybridStore_CursorTieBreaksOnID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id := int64(1); id <= 3; id++ {
			if err := writeMeta(ctx, pipe, nil, &model.Article{ID: id, URL: "u", CreatedAt: ts}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	rows, err := store.ListAfter(ctx, pagination.All, &pagination.Cursor{Timestamp: ts, ID: 3}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)
	assert.Equal(t, int64(1), rows[1].ID)
}

func TestHybridStore_ClientMode_NoBadger(t *testing.T) {
	mr := miniredis.RunT(t)

	// Initialize with EMPTY badger path (Simulating 'crusty add')
	store, err := NewHybridStore(mr.Addr(), "")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Metadata-only writes work without disk storage
	a := model.Article{URL: "http://example.com/", Title: "Bare"}
	require.NoError(t, store.Create(ctx, &a))
	assert.True(t, mr.Exists("article:1"))

	// If we try to save HTML without Badger, it should block us
	b := newArticle("http://example.com/heavy")
	err = store.Create(ctx, b)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "badgerdb is not initialized", "Should prevent saving content without disk storage")
	assert.False(t, mr.Exists("article:url:http://example.com/heavy"), "url is not claimed")
}

func TestHybridStore_ListSkipsAndPrunesDeletedMeta(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		require.NoError(t, store.Create(ctx, newArticle(u)))
	}
	// metadata vanishes but the index entries stay behind
	mr.Del("article:2")

	rows, err := store.ListAfter(ctx, pagination.All, nil, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2, "page is filled from further down the index")
	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, int64(1), rows[1].ID)

	n, err := store.rdb.ZCard(ctx, keyAll).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "dead index entry is removed")

	page, err := pagination.NewPaginator(store, zap.NewNop()).Page(ctx, pagination.Unread, "", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.HasMore)
}

func TestHybridStore_UpdateKeepsMetaWhenContentWriteFails(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := &HybridStore{rdb: rdb, db: db}
	ctx := context.Background()

	a := newArticle("https://example.com/u")
	require.NoError(t, store.Create(ctx, a))
	read, err := store.ToggleRead(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, store.db.Close())

	upd := model.NewArticle(a.URL, &model.ExtractedContent{Title: "Fresh", Content: "<p>new</p>", WordCount: 1})
	upd.ID = a.ID
	require.Error(t, store.Update(ctx, &upd))

	meta, err := readMeta(ctx, store.rdb, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Article", meta.Title)
	assert.True(t, meta.IsRead)
	assert.True(t, read.CreatedAt.Equal(meta.CreatedAt))
}

func TestHybridStore_UpdateMissing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	upd := newArticle("https://example.com/none")
	upd.ID = 42
	assert.ErrorIs(t, store.Update(ctx, upd), ErrNotFound)

	err := store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("content:42"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound, "no orphan content")
}
