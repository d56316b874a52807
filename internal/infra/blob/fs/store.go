// Package fs implements blob.Store on a local directory. Every object has a
// JSON sidecar (key + ".meta") holding its content type, metadata and digest.
package fs

import (
	"assetflow/internal/blob"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var _ blob.Store = (*Store)(nil)

const (
	defaultRoot = "./blobdata"
	metaSuffix  = ".meta"
)

// Store maps keys to files below root.
type Store struct {
	root string
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

// New roots a store at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultRoot
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

// Driver returns blob.DriverFilesystem.
func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

func (s *Store) paths(key string) (string, string, string, error) {
	clean, err := blob.CleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(clean, metaSuffix) {
		return "", "", "", fmt.Errorf("%w: %q uses reserved suffix", blob.ErrInvalidKey, key)
	}
	data := filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, data, data + metaSuffix, nil
}

// Put streams r to a temp file, then renames it into place.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return blob.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".put-*")
	if err != nil {
		return blob.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return blob.Info{}, err
	}
	// Link fails when another writer got there first, keeping Put create-only.
	if err := os.Link(tmp.Name(), dataPath); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
		}
		return blob.Info{}, fmt.Errorf("place %s: %w", key, err)
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    blob.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		WrittenAt:   time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return blob.Info{}, err
	}
	if err := os.WriteFile(metaPath, raw, 0o640); err != nil {
		return blob.Info{}, fmt.Errorf("write %s metadata: %w", key, err)
	}
	return meta.info(key), nil
}

func (m sidecar) info(key string) blob.Info {
	return blob.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     blob.CloneMetadata(m.Metadata),
		LastModified: m.WrittenAt,
	}
}

func readSidecar(key, path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return sidecar{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode %s metadata: %w", key, err)
	}
	return meta, nil
}

// Get opens the object for reading.
func (s *Store) Get(_ context.Context, key string) (blob.Info, io.ReadCloser, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	meta, err := readSidecar(key, metaPath)
	if err != nil {
		return blob.Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return blob.Info{}, nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	if err != nil {
		return blob.Info{}, nil, err
	}
	return meta.info(key), f, nil
}

// Head reads the sidecar only.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	key, _, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}
	meta, err := readSidecar(key, metaPath)
	if err != nil {
		return blob.Info{}, err
	}
	return meta.info(key), nil
}

// Delete removes the object and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root collecting sidecars whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	var out []blob.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readSidecar(key, path)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a file URL; only useful on the local machine.
func (s *Store) PresignURL(_ context.Context, key string, _ blob.SignedURLOptions) (string, error) {
	_, dataPath, _, err := s.paths(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
