package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

func TestPostStoreUpsertPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPostStore()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return created }

	original := scraper.Post{
		ID: "p1", Title: "old", Author: "alice", URL: "https://a", Subreddit: "datasets",
		PublishedAt: time.Unix(100, 0).UTC(), FullText: "old",
	}
	require.NoError(t, store.Upsert(ctx, original))

	store.now = func() time.Time { return created.Add(time.Hour) }
	updated := original
	updated.Title = "new"
	updated.Body = "body"
	updated.FullText = "new\n\nbody"
	updated.Score = 5
	updated.NumComments = 3
	updated.Author = "bob"
	updated.Subreddit = "other"
	require.NoError(t, store.Upsert(ctx, updated))

	posts, err := store.ListPosts(ctx, scraper.PostQuery{Limit: 5})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	got := posts[0]
	require.Equal(t, "new", got.Title)
	require.Equal(t, "new\n\nbody", got.FullText)
	require.Equal(t, 5, got.Score)
	require.Equal(t, 3, got.NumComments)
	require.Equal(t, "alice", got.Author)
	require.Equal(t, "datasets", got.Subreddit)
	require.Equal(t, created, got.CreatedAt)
}

func TestPostStoreListPosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPostStore()
	for i, sub := range []string{"datasets", "learnpython", "datasets"} {
		require.NoError(t, store.Upsert(ctx, scraper.Post{
			ID:          string(rune('a' + i)),
			Subreddit:   sub,
			PublishedAt: time.Unix(int64(100*(i+1)), 0).UTC(),
		}))
	}

	all, err := store.ListPosts(ctx, scraper.PostQuery{Subreddit: scraper.AllSubreddits, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, "c", all[0].ID)
	require.Equal(t, "b", all[1].ID)

	filtered, err := store.ListPosts(ctx, scraper.PostQuery{Subreddit: "datasets", Limit: 10})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, "c", filtered[0].ID)

	_, err = store.ListPosts(ctx, scraper.PostQuery{})
	require.Error(t, err)
	require.Error(t, store.Upsert(ctx, scraper.Post{}))
}
