// Package sqlite provides a single-file post store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/storage/sqlite/migrations"
)

// timeLayout matches CURRENT_TIMESTAMP so text columns sort chronologically.
const timeLayout = "2006-01-02 15:04:05"

// PostStore implements scraper.PostStore on SQLite.
type PostStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database file at path.
func Open(path string) (*PostStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; workers queue on the pool instead of SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return &PostStore{db: db, path: path}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Bootstrap creates the tables if they do not exist.
func (s *PostStore) Bootstrap(_ context.Context) error {
	// migrate closes the handle it is given, so it gets its own
	db, err := sql.Open("sqlite", dsn(s.path))
	if err != nil {
		return fmt.Errorf("open migration handle: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("init migration driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Upsert inserts post, or refreshes its mutable columns if it already exists.
func (s *PostStore) Upsert(ctx context.Context, post scraper.Post) error {
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reddit_posts (
			post_id, title, selftext, url, author, score, publish_date,
			num_of_comments, permalink, flair, subreddit, full_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			title = excluded.title,
			selftext = excluded.selftext,
			score = excluded.score,
			num_of_comments = excluded.num_of_comments,
			full_text = excluded.full_text`,
		post.ID,
		post.Title,
		post.Body,
		post.URL,
		post.Author,
		post.Score,
		post.PublishedAt.UTC().Format(timeLayout),
		post.NumComments,
		post.Permalink,
		post.Flair,
		post.Subreddit,
		post.FullText,
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

// ListPosts returns the newest posts, optionally for one subreddit.
func (s *PostStore) ListPosts(ctx context.Context, query scraper.PostQuery) ([]scraper.Post, error) {
	if query.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	q := `SELECT post_id, title, selftext, url, author, score, publish_date,
		num_of_comments, permalink, flair, subreddit, created_at, full_text
		FROM reddit_posts`
	args := []any{}
	if query.Filtered() {
		q += ` WHERE subreddit = ?`
		args = append(args, query.Subreddit)
	}
	q += ` ORDER BY publish_date DESC, post_id LIMIT ?`
	args = append(args, query.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]scraper.Post, 0, query.Limit)
	for rows.Next() {
		var (
			p                  scraper.Post
			published, created string
		)
		if err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Body,
			&p.URL,
			&p.Author,
			&p.Score,
			&published,
			&p.NumComments,
			&p.Permalink,
			&p.Flair,
			&p.Subreddit,
			&created,
			&p.FullText,
		); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		if p.PublishedAt, err = time.ParseInLocation(timeLayout, published, time.UTC); err != nil {
			return nil, fmt.Errorf("parse publish_date of %s: %w", p.ID, err)
		}
		if p.CreatedAt, err = time.ParseInLocation(timeLayout, created, time.UTC); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// Ping checks the database file is reachable.
func (s *PostStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostStore) Close() error {
	return s.db.Close()
}
