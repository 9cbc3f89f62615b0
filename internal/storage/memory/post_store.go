package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// PostStore keeps posts in a map with the same upsert policy as the SQL stores.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]scraper.Post
	now   func() time.Time
}

// NewPostStore constructs an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		posts: make(map[string]scraper.Post),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Bootstrap is a no-op; the map always exists.
func (s *PostStore) Bootstrap(_ context.Context) error {
	return nil
}

// Upsert inserts post or overwrites the mutable fields of the existing row.
func (s *PostStore) Upsert(_ context.Context, post scraper.Post) error {
	if post.ID == "" {
		return errors.New("post id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.posts[post.ID]
	if !ok {
		post.CreatedAt = s.now().Truncate(time.Second)
		s.posts[post.ID] = post
		return nil
	}
	existing.Title = post.Title
	existing.Body = post.Body
	existing.Score = post.Score
	existing.NumComments = post.NumComments
	existing.FullText = post.FullText
	s.posts[post.ID] = existing
	return nil
}

// ListPosts returns copies of the newest posts, optionally filtered.
func (s *PostStore) ListPosts(_ context.Context, query scraper.PostQuery) ([]scraper.Post, error) {
	if query.Limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	s.mu.RLock()
	out := make([]scraper.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if query.Filtered() && p.Subreddit != query.Subreddit {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *PostStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *PostStore) Close() error {
	return nil
}
