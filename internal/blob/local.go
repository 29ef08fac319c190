package blob

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentplate/agentplate/pkg/schema"
)

// LocalStore keeps objects on the local filesystem under a root directory.
// Each bucket is a subdirectory of the root.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// resolve maps bucket/key to an absolute path, rejecting escapes from the
// bucket directory.
func (l *LocalStore) resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid bucket name: %q", bucket)
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == string(filepath.Separator) ||
		strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid object key: %q", key)
	}
	return filepath.Join(l.root, bucket, cleaned), nil
}

func (l *LocalStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	path, err := l.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (l *LocalStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	path, err := l.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "object %q not found in bucket %q", key, bucket)
	}
	return data, err
}

func (l *LocalStore) Delete(ctx context.Context, bucket, key string) error {
	path, err := l.resolve(bucket, key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "object %q not found in bucket %q", key, bucket)
	}
	return err
}

func (l *LocalStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid bucket name: %q", bucket)
	}
	bucketDir := filepath.Join(l.root, bucket)
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		return nil, nil
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:       key,
			Size:      info.Size(),
			UpdatedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
