package scraper

import (
	"context"
	"io"
	"time"
)

// Source returns bounded pages of hot posts for a channel.
type Source interface {
	// Authenticate verifies credentials before a channel is scraped.
	Authenticate(ctx context.Context) error
	Hot(ctx context.Context, subreddit string, limit int) (Listing, error)
}

// PostStore persists posts with the upsert policy and serves the read query.
type PostStore interface {
	// Bootstrap creates the tables if they do not exist yet.
	Bootstrap(ctx context.Context) error
	Upsert(ctx context.Context, post Post) error
	ListPosts(ctx context.Context, query PostQuery) ([]Post, error)
	Ping(ctx context.Context) error
	Close() error
}

// PostReader is the read half of PostStore.
type PostReader interface {
	ListPosts(ctx context.Context, query PostQuery) ([]Post, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for channel tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
