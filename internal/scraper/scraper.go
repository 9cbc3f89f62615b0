package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
)

// ErrNoPostsSaved marks a page where every attempted upsert failed.
var ErrNoPostsSaved = errors.New("no posts saved")

// Options wires a Scraper. Source and Posts are required.
type Options struct {
	Source        Source
	Posts         PostStore
	Blobs         BlobStore
	Publisher     Publisher
	Hasher        Hasher
	Clock         Clock
	Topic         string
	ArchivePrefix string
	Logger        *zap.Logger
}

// Scraper runs the bootstrap task and the per-channel scrape task.
type Scraper struct {
	source    Source
	posts     PostStore
	blobs     BlobStore
	publisher Publisher
	hasher    Hasher
	clock     Clock
	topic     string
	prefix    string
	logger    *zap.Logger
}

// New validates opts and returns a Scraper.
func New(opts Options) (*Scraper, error) {
	if opts.Source == nil {
		return nil, errors.New("scraper: source is required")
	}
	if opts.Posts == nil {
		return nil, errors.New("scraper: post store is required")
	}
	if opts.Blobs != nil && (opts.Hasher == nil || opts.Clock == nil) {
		return nil, errors.New("scraper: archiving requires a hasher and a clock")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		source:    opts.Source,
		posts:     opts.Posts,
		blobs:     opts.Blobs,
		publisher: opts.Publisher,
		hasher:    opts.Hasher,
		clock:     opts.Clock,
		topic:     opts.Topic,
		prefix:    opts.ArchivePrefix,
		logger:    logger.Named("scraper"),
	}, nil
}

// Bootstrap creates the post table if needed.
func (s *Scraper) Bootstrap(ctx context.Context) error {
	if err := s.posts.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap post store: %w", err)
	}
	return nil
}

// ScrapeChannel fetches one hot page for subreddit and upserts every
// non-stickied record. A failed record is counted and skipped.
func (s *Scraper) ScrapeChannel(ctx context.Context, runID, subreddit string, limit int) (ChannelResult, error) {
	result := ChannelResult{Subreddit: subreddit}
	logger := s.logger.With(zap.String("run_id", runID), zap.String("subreddit", subreddit))

	if err := s.source.Authenticate(ctx); err != nil {
		return result, fmt.Errorf("authenticate: %w", err)
	}
	listing, err := s.source.Hot(ctx, subreddit, limit)
	if err != nil {
		return result, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	result.Seen = len(listing.Items)
	result.ArchiveURI = s.archive(ctx, logger, subreddit, listing)

	for _, item := range listing.Items {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("scrape r/%s: %w", subreddit, err)
		}
		if item.Stickied {
			result.Skipped++
			continue
		}
		post := Normalize(item, subreddit)
		if err := s.posts.Upsert(ctx, post); err != nil {
			result.Failed++
			metrics.ObservePostUpsert(subreddit, false)
			logger.Warn("upsert failed", zap.String("post_id", post.ID), zap.Error(err))
			continue
		}
		result.Saved++
		metrics.ObservePostUpsert(subreddit, true)
	}

	logger.Info("saved posts",
		zap.Int("saved", result.Saved),
		zap.Int("attempted", result.Attempted()),
		zap.Int("limit", limit),
		zap.Int("skipped", result.Skipped),
	)
	s.notify(ctx, logger, runID, result)

	if result.Attempted() > 0 && result.Saved == 0 {
		return result, fmt.Errorf("r/%s: %d of %d upserts failed: %w", subreddit, result.Failed, result.Attempted(), ErrNoPostsSaved)
	}
	return result, nil
}

func (s *Scraper) archive(ctx context.Context, logger *zap.Logger, subreddit string, listing Listing) string {
	if s.blobs == nil || len(listing.Raw) == 0 {
		return ""
	}
	digest, err := s.hasher.Hash(listing.Raw)
	if err != nil {
		logger.Warn("hash listing failed", zap.Error(err))
		return ""
	}
	contentType := listing.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	objectPath := path.Join(s.prefix, s.clock.Now().UTC().Format("2006/01/02"), subreddit, digest+extensionFor(contentType))
	uri, err := s.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(listing.Raw))
	if err != nil {
		logger.Warn("archive listing failed", zap.String("path", objectPath), zap.Error(err))
		return ""
	}
	return uri
}

func (s *Scraper) notify(ctx context.Context, logger *zap.Logger, runID string, result ChannelResult) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	summary := ChannelSummary{RunID: runID, Result: result}
	if s.clock != nil {
		summary.CompletedAt = s.clock.Now().UTC()
	}
	if _, err := s.publisher.Publish(ctx, s.topic, summary); err != nil {
		logger.Warn("publish channel summary failed", zap.Error(err))
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/rss+xml", "application/atom+xml", "application/xml", "text/xml":
		return ".xml"
	default:
		return ".json"
	}
}
