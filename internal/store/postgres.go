package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

const listColumns = `id, url, title, excerpt, author, site_name, published_time,
	word_count, reading_time, is_read, is_favorite, created_at, read_at`

// PostgresStore keeps articles in a single table. Uniqueness of url is
// enforced by the database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an open connection.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, article *model.Article) error {
	query := `
		INSERT INTO articles (
			url, title, content, excerpt, author, site_name, published_time,
			word_count, reading_time, is_read, is_favorite
		) VALUES (
			:url, :title, :content, :excerpt, :author, :site_name, :published_time,
			:word_count, :reading_time, :is_read, :is_favorite
		)
		RETURNING id, created_at`

	rows, err := sqlx.NamedQueryContext(ctx, s.db, query, article)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mapErr(err)
		}
		return fmt.Errorf("insert returned no row")
	}
	if err := rows.Scan(&article.ID, &article.CreatedAt); err != nil {
		return err
	}
	article.CreatedAt = article.CreatedAt.UTC()
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, article *model.Article) error {
	query := `
		UPDATE articles SET
			title = $2, content = $3, excerpt = $4, author = $5, site_name = $6,
			published_time = $7, word_count = $8, reading_time = $9,
			is_read = FALSE, read_at = NULL, created_at = now()
		WHERE id = $1
		RETURNING *`

	var updated model.Article
	err := s.db.GetContext(ctx, &updated, query,
		article.ID,
		article.Title,
		article.Content,
		article.Excerpt,
		article.Author,
		article.SiteName,
		article.PublishedTime,
		article.WordCount,
		article.ReadingTime,
	)
	if err != nil {
		return mapErr(err)
	}
	*article = normalize(updated)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Article, error) {
	return s.one(ctx, "SELECT * FROM articles WHERE id = $1", id)
}

func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*model.Article, error) {
	return s.one(ctx, "SELECT * FROM articles WHERE url = $1", url)
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ToggleRead(ctx context.Context, id int64) (*model.Article, error) {
	return s.one(ctx, `
		UPDATE articles SET
			is_read = NOT is_read,
			read_at = CASE WHEN is_read THEN NULL ELSE now() END
		WHERE id = $1
		RETURNING *`, id)
}

func (s *PostgresStore) ToggleFavorite(ctx context.Context, id int64) (*model.Article, error) {
	return s.one(ctx, "UPDATE articles SET is_favorite = NOT is_favorite WHERE id = $1 RETURNING *", id)
}

func (s *PostgresStore) RandomFavorite(ctx context.Context) (*model.Article, error) {
	return s.one(ctx, "SELECT * FROM articles WHERE is_favorite ORDER BY random() LIMIT 1")
}

// ListAfter pages with the (created_at, id) keyset. Content is not loaded.
func (s *PostgresStore) ListAfter(ctx context.Context, pred pagination.Predicate, cursor *pagination.Cursor, n int) ([]model.Article, error) {
	where := predicateSQL(pred)
	args := []any{n}
	if cursor != nil {
		where += " AND (created_at < $2 OR (created_at = $2 AND id < $3))"
		args = append(args, cursor.Timestamp, cursor.ID)
	}
	query := "SELECT " + listColumns + " FROM articles WHERE " + where +
		" ORDER BY created_at DESC, id DESC LIMIT $1"

	articles := []model.Article{}
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i] = normalize(articles[i])
	}
	return articles, nil
}

func predicateSQL(p pagination.Predicate) string {
	switch p {
	case pagination.Unread:
		return "NOT is_read"
	case pagination.Favorites:
		return "is_favorite"
	}
	return "TRUE"
}

func (s *PostgresStore) one(ctx context.Context, query string, args ...any) (*model.Article, error) {
	var a model.Article
	if err := s.db.GetContext(ctx, &a, query, args...); err != nil {
		return nil, mapErr(err)
	}
	a = normalize(a)
	return &a, nil
}

// normalize puts driver timestamps in UTC so both backends agree.
func normalize(a model.Article) model.Article {
	a.CreatedAt = a.CreatedAt.UTC()
	if a.ReadAt != nil {
		t := a.ReadAt.UTC()
		a.ReadAt = &t
	}
	return a
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Detail)
	}
	return err
}
