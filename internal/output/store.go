package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// ContentType is set on every saved video.
const ContentType = "video/mp4"

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("output: invalid object key")

// Store writes generated videos to a bucket.
// It is safe for concurrent use.
type Store struct {
	bucket *blob.Bucket

	// localRoot is set when the bucket is a directory on this machine.
	localRoot string
}

// OpenLocal opens a store rooted at dir, creating it if needed. Objects
// are written as plain files without attribute sidecars.
func OpenLocal(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Temp files are created next to their final path, so the rename on
	// Close never crosses filesystems.
	bkt, err := fileblob.OpenBucket(abs, &fileblob.Options{
		Metadata:  fileblob.MetadataDontWrite,
		NoTempDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open output dir: %w", err)
	}

	return &Store{bucket: bkt, localRoot: abs}, nil
}

// Open opens a store from a gocloud bucket URL such as s3://bucket,
// gs://bucket, mem:// or file:///path. The matching driver must be
// registered by the caller.
func Open(ctx context.Context, bucketURL string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return &Store{bucket: bkt}, nil
}

// NewStore wraps an already opened bucket. The store takes ownership.
func NewStore(bkt *blob.Bucket) *Store {
	return &Store{bucket: bkt}
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() *blob.Bucket {
	return s.bucket
}

// Location describes where objects end up, for display.
func (s *Store) Location(dir string) string {
	if s.localRoot != "" {
		return filepath.Join(s.localRoot, filepath.FromSlash(dir))
	}
	return dir
}

// EnsureDir makes sure dir exists. Object stores have no directories, so
// this only does work for local roots. An existing directory is not an
// error, so every worker may call it.
func (s *Store) EnsureDir(dir string) error {
	if s.localRoot == "" {
		return nil
	}
	if err := validateKey(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.localRoot, filepath.FromSlash(dir)), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// Save streams r to key, replacing any existing object, and returns the
// number of bytes written. If copying fails the write is aborted; a
// previously existing object may or may not survive depending on the
// driver.
func (s *Store) Save(ctx context.Context, key string, r io.Reader, metadata map[string]string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: ContentType,
		Metadata:    metadata,
	})
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", key, err)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		// Canceling the context before Close discards the write.
		cancel()
		w.Close()
		return n, fmt.Errorf("write %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", key, err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := s.bucket.Attributes(ctx, key)
	if err == nil {
		return true, nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func validateKey(key string) error {
	if key == "" || path.IsAbs(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
