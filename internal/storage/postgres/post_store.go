package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

const upsertPostSQL = `
INSERT INTO reddit_posts (
	post_id,
	title,
	selftext,
	url,
	author,
	score,
	publish_date,
	num_of_comments,
	permalink,
	flair,
	subreddit,
	full_text
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (post_id) DO UPDATE SET
	title = EXCLUDED.title,
	selftext = EXCLUDED.selftext,
	score = EXCLUDED.score,
	num_of_comments = EXCLUDED.num_of_comments,
	full_text = EXCLUDED.full_text`

const selectPostsSQL = `
SELECT post_id, title, selftext, url, author, score, publish_date,
	num_of_comments, permalink, flair, subreddit, created_at, full_text
FROM reddit_posts`

// PostStore implements scraper.PostStore on Postgres.
type PostStore struct {
	pool pgxPool
	dsn  string
}

// NewPostStore wraps pool. dsn is kept for Bootstrap, which migrates over its
// own connection.
func NewPostStore(pool pgxPool, dsn string) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostStore{pool: pool, dsn: dsn}, nil
}

// Bootstrap creates the tables if they do not exist.
func (s *PostStore) Bootstrap(_ context.Context) error {
	return Migrate(s.dsn)
}

// Upsert inserts post, or refreshes its mutable columns if it already exists.
// created_at and every other column keep their first-seen values.
func (s *PostStore) Upsert(ctx context.Context, post scraper.Post) error {
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	_, err := s.pool.Exec(ctx, upsertPostSQL,
		post.ID,
		post.Title,
		post.Body,
		post.URL,
		post.Author,
		post.Score,
		post.PublishedAt,
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
	sql := selectPostsSQL
	args := []any{}
	if query.Filtered() {
		sql += "\nWHERE subreddit = $1\nORDER BY publish_date DESC, post_id\nLIMIT $2"
		args = append(args, query.Subreddit, query.Limit)
	} else {
		sql += "\nORDER BY publish_date DESC, post_id\nLIMIT $1"
		args = append(args, query.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]scraper.Post, 0, query.Limit)
	for rows.Next() {
		var p scraper.Post
		if err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Body,
			&p.URL,
			&p.Author,
			&p.Score,
			&p.PublishedAt,
			&p.NumComments,
			&p.Permalink,
			&p.Flair,
			&p.Subreddit,
			&p.CreatedAt,
			&p.FullText,
		); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		p.PublishedAt = p.PublishedAt.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// Ping checks connectivity for readiness probes.
func (s *PostStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
