// Package artifacts stores run outputs (failure screenshots, page captures,
// storage state, the run report) on the local filesystem or in an
// S3-compatible bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kuitang/todo-e2e/internal/config"
)

// ErrObjectNotFound is returned when a requested artifact does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Store persists artifacts by key. Put returns where the artifact can be
// found: a file path or a URL.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Key builds runs/<run>/<test>/<name>. Subtest separators and other unsafe
// characters become underscores.
func Key(runID, test, name string) string {
	return strings.Join([]string{"runs", segment(runID), segment(test), segment(name)}, "/")
}

// RunKey builds runs/<run>/<name> for run-level artifacts such as the report.
func RunKey(runID, name string) string {
	return strings.Join([]string{"runs", segment(runID), segment(name)}, "/")
}

func segment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// New returns an S3Store when upload is configured, otherwise a DirStore
// rooted at cfg.ArtifactsDir.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.Upload.Enabled() {
		return NewS3Store(ctx, S3Config{
			Endpoint:        cfg.Upload.Endpoint,
			Region:          cfg.Upload.Region,
			AccessKeyID:     cfg.Upload.AccessKeyID,
			SecretAccessKey: cfg.Upload.SecretAccessKey,
			BucketName:      cfg.Upload.Bucket,
			PublicURL:       cfg.Upload.PublicURL,
			UsePathStyle:    cfg.Upload.Endpoint != "",
		})
	}
	return NewDirStore(cfg.ArtifactsDir), nil
}

// DirStore writes artifacts under a local directory.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Root returns the directory artifacts are written under.
func (d *DirStore) Root() string {
	return d.root
}

func (d *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("artifacts: invalid key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *DirStore) Put(_ context.Context, key string, content []byte, _ string) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create directory for %q: %w", key, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %q: %w", key, err)
	}
	return p, nil
}

func (d *DirStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %q: %w", key, err)
	}
	return data, nil
}

// List returns the keys under prefix in lexical order.
func (d *DirStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: list %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
