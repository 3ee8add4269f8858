package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Save(ctx, "photo.JPG", "image/jpeg", strings.NewReader("jpeg"), 4)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, store.Root()))
	assert.Equal(t, ".jpg", strings.ToLower(filepath.Ext(path)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, store.Delete(ctx, path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, store.Delete(ctx, path), ErrFileMissing)
	assert.ErrorIs(t, store.Delete(ctx, ""), ErrFileMissing)
}

func TestLocalStoreDeleteRelativePath(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, store.Delete(context.Background(), "a.txt"))

	assert.Error(t, store.Delete(context.Background(), "."))
}

func TestObjectNameIsUniqueAndDated(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	a := ObjectName("report.pdf", now)
	b := ObjectName("report.pdf", now)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "2024/03/09/"), a)
	assert.True(t, strings.HasSuffix(a, ".pdf"), a)
}
