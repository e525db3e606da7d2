package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalStore implements ObjectStore on a directory tree.
// Each key maps to a file below the root; directories are implicit.
type LocalStore struct {
	mu   sync.RWMutex
	root string
}

// NewLocalStore creates a new LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStore{
		root: dir,
	}, nil
}

// Root returns the directory backing the store.
func (s *LocalStore) Root() string {
	return s.root
}

// resolve maps a key to a path inside the root, rejecting traversal.
func (s *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// List walks the directory holding prefix and returns matching keys sorted by key.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	walkRoot := s.root
	if dir := path.Dir(prefix); strings.HasSuffix(prefix, "/") {
		walkRoot = filepath.Join(s.root, filepath.FromSlash(prefix))
	} else if dir != "." {
		walkRoot = filepath.Join(s.root, filepath.FromSlash(dir))
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  mime.TypeByExtension(path.Ext(key)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

// Upload writes r to a temp file and links it into place, failing if key exists.
func (s *LocalStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ObjectInfo{}, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("creating file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, readerWithContext(ctx, r))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("writing file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// os.Link fails when dst exists, which gives no-overwrite semantics.
	if err := os.Link(tmpPath, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrObjectExists)
		}
		return ObjectInfo{}, fmt.Errorf("storing file: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	return ObjectInfo{
		Key:          key,
		Size:         size,
		LastModified: info.ModTime(),
		ContentType:  contentType,
	}, nil
}

// Download opens the file stored under key.
func (s *LocalStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Copy duplicates src into dst. The destination must not exist.
func (s *LocalStore) Copy(ctx context.Context, src, dst string) error {
	in, err := s.Download(ctx, src)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = s.Upload(ctx, dst, in, "")
	return err
}

// Remove deletes keys and prunes directories left empty.
func (s *LocalStore) Remove(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := s.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		s.pruneEmptyDirs(filepath.Dir(p))
	}
	return nil
}

func (s *LocalStore) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}
