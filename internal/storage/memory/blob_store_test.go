package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"kind":"Listing"}`)
	uri, err := store.PutObject(context.Background(), "listings/2024/01/02/datasets/abc.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://listings/2024/01/02/datasets/abc.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = '['
	stored, ok := store.Object("listings/2024/01/02/datasets/abc.json")
	if !ok || string(stored) != `{"kind":"Listing"}` {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if _, ok := store.Object("missing"); ok {
		t.Fatal("expected missing object")
	}
}
