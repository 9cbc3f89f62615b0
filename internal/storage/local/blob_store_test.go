package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reddit-newsbot/internal/storage/local"
)

func TestNewRejectsUnusableDirs(t *testing.T) {
	t.Parallel()

	notDir := filepath.Join(t.TempDir(), "archive.txt")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o600))

	for name, dir := range map[string]string{
		"empty":     "",
		"not a dir": notDir,
	} {
		_, err := local.New(local.Config{BaseDir: dir})
		require.Error(t, err, name)
	}

	if os.Geteuid() != 0 {
		readOnly := t.TempDir()
		// #nosec G302 -- read-only directory is the case under test.
		require.NoError(t, os.Chmod(readOnly, 0o500))
		t.Cleanup(func() { _ = os.Chmod(readOnly, 0o700) })
		_, err := local.New(local.Config{BaseDir: readOnly})
		require.Error(t, err)
	}
}

func TestPutObjectArchivesListing(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	ctx := context.Background()
	key := "listings/2024/03/01/datasets/abc.json"

	uri, err := blobs.PutObject(ctx, key, "application/json", strings.NewReader(`{"kind":"Listing"}`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, key), uri)

	// a rerun of the same page replaces the file in place
	_, err = blobs.PutObject(ctx, key, "application/json", strings.NewReader(`{"kind":"Listing","after":"t3_x"}`))
	require.NoError(t, err)

	// #nosec G304 -- reads back from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(base, key))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"Listing","after":"t3_x"}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(base, key)))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestPutObjectRejectsBadKeys(t *testing.T) {
	t.Parallel()

	blobs, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = blobs.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
	_, err = blobs.PutObject(context.Background(), "../escape.json", "application/json", strings.NewReader("{}"))
	require.ErrorContains(t, err, "path traversal")
}
