// local_test.go - Tests for the directory-backed object store
package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func upload(t *testing.T, s ObjectStore, key, content string) ObjectInfo {
	t.Helper()
	info, err := s.Upload(context.Background(), key, strings.NewReader(content), "text/csv")
	require.NoError(t, err)
	return info
}

func readAll(t *testing.T, s ObjectStore, key string) string {
	t.Helper()
	rc, err := s.Download(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates storage directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "objects", "sprint-data")

		store, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("Expected storage directory to be created")
		}
		if store.Root() != dir {
			t.Errorf("Expected root %s, got %s", dir, store.Root())
		}
	})
}

func TestLocalStore_Upload(t *testing.T) {
	t.Run("stores object under nested key", func(t *testing.T) {
		store := createTestStore(t)

		info := upload(t, store, "user-1/upload-1/tasks.csv", "a,b\n1,2\n")

		assert.Equal(t, "user-1/upload-1/tasks.csv", info.Key)
		assert.Equal(t, int64(8), info.Size)
		assert.Equal(t, "text/csv", info.ContentType)
		assert.False(t, info.LastModified.IsZero())
		assert.Equal(t, "a,b\n1,2\n", readAll(t, store, "user-1/upload-1/tasks.csv"))
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		store := createTestStore(t)
		upload(t, store, "u/f/a.csv", "first")

		_, err := store.Upload(context.Background(), "u/f/a.csv", strings.NewReader("second"), "")
		assert.ErrorIs(t, err, ErrObjectExists)
		assert.Equal(t, "first", readAll(t, store, "u/f/a.csv"))
	})

	t.Run("rejects traversal", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.Upload(context.Background(), "../escape.csv", strings.NewReader("x"), "")
		assert.Error(t, err)
	})

	t.Run("allows dots inside names", func(t *testing.T) {
		store := createTestStore(t)
		upload(t, store, "u/f/sprint..v2.csv", "x")
		assert.Equal(t, "x", readAll(t, store, "u/f/sprint..v2.csv"))
	})
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	upload(t, store, "u1/upload-1/a.csv", "a")
	upload(t, store, "u1/upload-1/b.csv", "bb")
	upload(t, store, "u1/upload-2/c.csv", "ccc")
	upload(t, store, "u2/upload-9/d.csv", "dddd")

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"user prefix", "u1/", []string{"u1/upload-1/a.csv", "u1/upload-1/b.csv", "u1/upload-2/c.csv"}},
		{"folder prefix", "u1/upload-1/", []string{"u1/upload-1/a.csv", "u1/upload-1/b.csv"}},
		{"partial name", "u1/upload-1/b", []string{"u1/upload-1/b.csv"}},
		{"missing prefix", "nobody/", nil},
		{"everything", "", []string{"u1/upload-1/a.csv", "u1/upload-1/b.csv", "u1/upload-2/c.csv", "u2/upload-9/d.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects, err := store.List(context.Background(), tt.prefix)
			require.NoError(t, err)

			var keys []string
			for _, o := range objects {
				keys = append(keys, o.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	t.Run("reports sizes", func(t *testing.T) {
		objects, err := store.List(context.Background(), "u2/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, int64(4), objects[0].Size)
	})
}

func TestLocalStore_Download(t *testing.T) {
	store := createTestStore(t)

	_, err := store.Download(context.Background(), "u/f/missing.csv")
	assert.True(t, errors.Is(err, ErrObjectNotFound), "expected not found, got %v", err)
}

func TestLocalStore_Copy(t *testing.T) {
	t.Run("copies content", func(t *testing.T) {
		store := createTestStore(t)
		upload(t, store, "u/old/a.csv", "payload")

		require.NoError(t, store.Copy(context.Background(), "u/old/a.csv", "u/new/a.csv"))

		assert.Equal(t, "payload", readAll(t, store, "u/new/a.csv"))
		assert.Equal(t, "payload", readAll(t, store, "u/old/a.csv"))
	})

	t.Run("missing source", func(t *testing.T) {
		store := createTestStore(t)
		err := store.Copy(context.Background(), "u/old/a.csv", "u/new/a.csv")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("existing destination", func(t *testing.T) {
		store := createTestStore(t)
		upload(t, store, "u/old/a.csv", "one")
		upload(t, store, "u/new/a.csv", "two")

		err := store.Copy(context.Background(), "u/old/a.csv", "u/new/a.csv")
		assert.ErrorIs(t, err, ErrObjectExists)
	})
}

func TestLocalStore_Remove(t *testing.T) {
	t.Run("removes keys and empty folders", func(t *testing.T) {
		store := createTestStore(t)
		upload(t, store, "u/f/a.csv", "a")
		upload(t, store, "u/f/b.csv", "b")
		upload(t, store, "u/g/c.csv", "c")

		require.NoError(t, store.Remove(context.Background(), []string{"u/f/a.csv", "u/f/b.csv"}))

		objects, err := store.List(context.Background(), "u/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "u/g/c.csv", objects[0].Key)

		_, err = os.Stat(filepath.Join(store.Root(), "u", "f"))
		assert.True(t, os.IsNotExist(err), "empty folder should be pruned")
		_, err = os.Stat(store.Root())
		assert.NoError(t, err, "root must survive pruning")
	})

	t.Run("missing keys are ignored", func(t *testing.T) {
		store := createTestStore(t)
		assert.NoError(t, store.Remove(context.Background(), []string{"u/f/nope.csv"}))
	})
}
