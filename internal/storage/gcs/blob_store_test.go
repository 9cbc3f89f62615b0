package gcs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/reddit-newsbot/internal/storage/gcs"
)

type clientFactory struct {
	client *storage.Client
	err    error
}

func (f clientFactory) NewClient(_ context.Context) (*storage.Client, error) {
	return f.client, f.err
}

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(
		context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client
}

func TestPutObjectUploadsListing(t *testing.T) {
	payload := []byte(`{"kind":"Listing"}`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive/o")
		assert.Equal(t, "listings/abc.json", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		fmt.Fprintln(w, `{"name":"listings/abc.json","bucket":"archive"}`)
	})

	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "archive"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "listings/abc.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/listings/abc.json", uri)
}

func TestPutObjectPropagatesUploadError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "archive"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "listings/abc.json", "application/json", strings.NewReader("{}"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/archive")
		fmt.Fprintln(w, `{"name":"archive"}`)
	})
	store, err := gcs.Open(context.Background(), gcs.Config{Bucket: "archive"}, clientFactory{client: newTestClient(t, ok)})
	require.NoError(t, err)
	require.NotNil(t, store)

	missing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = gcs.Open(context.Background(), gcs.Config{Bucket: "archive"}, clientFactory{client: newTestClient(t, missing)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get GCS bucket")

	_, err = gcs.Open(context.Background(), gcs.Config{Bucket: "archive"}, clientFactory{err: errors.New("no credentials")})
	require.ErrorContains(t, err, "failed to create GCS client")

	_, err = gcs.Open(context.Background(), gcs.Config{}, nil)
	require.Error(t, err)
}
