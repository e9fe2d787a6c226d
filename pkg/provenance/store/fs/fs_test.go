package fs

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchain/provenance/pkg/provenance"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, strings.NewReader("scan bytes"))
	require.NoError(t, err)

	rc, err := store.Get(ctx, id)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "scan bytes", string(data))
}

func TestPutSkipsExistingBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Put(ctx, strings.NewReader("same bytes"))
	require.NoError(t, err)

	info, err := os.Stat(store.path(first))
	require.NoError(t, err)
	mtime := info.ModTime()

	second, err := store.Put(ctx, strings.NewReader("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err = os.Stat(store.path(first))
	require.NoError(t, err)
	assert.Equal(t, mtime, info.ModTime(), "existing blob must not be rewritten")
}

func TestBlobsAreSharded(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Put(context.Background(), strings.NewReader("shard me"))
	require.NoError(t, err)

	key := string(id)
	assert.Contains(t, store.path(id), key[len(key)-2:])
}

func TestGetMissingBlob(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "bafkreimissing")
	assert.ErrorIs(t, err, provenance.ErrContentNotFound)
}
