package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/ncecere/usage_console/internal/config"
)

const metaSuffix = ".meta"

// localStore keeps each object as a file plus a JSON sidecar. All access goes
// through an os.Root, so keys cannot resolve outside the directory even via
// symlinks.
type localStore struct {
	root *os.Root
}

type localMetadata struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata"`
}

func newLocalStore(cfg config.ReportsLocalConfig) (*localStore, error) {
	dir := strings.TrimSpace(cfg.Directory)
	if dir == "" {
		dir = "./data/reports"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open report dir: %w", err)
	}
	return &localStore{root: root}, nil
}

func (s *localStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	name, err := objectName(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	dir := path.Dir(name)
	if err := s.root.MkdirAll(dir, 0o750); err != nil {
		return ObjectInfo{}, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp := path.Join(dir, "."+uuid.NewString()+".tmp")
	written, err := s.writeFile(tmp, body)
	if err != nil {
		_ = s.root.Remove(tmp)
		return ObjectInfo{}, err
	}
	if err := s.root.Rename(tmp, name); err != nil {
		_ = s.root.Remove(tmp)
		return ObjectInfo{}, err
	}

	meta, err := json.Marshal(localMetadata{ContentType: opts.ContentType, Size: written, Metadata: opts.Metadata})
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := s.root.WriteFile(name+metaSuffix, meta, 0o640); err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: written, ContentType: opts.ContentType, Metadata: opts.Metadata}, nil
}

func (s *localStore) writeFile(name string, body io.Reader) (int64, error) {
	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(f, body)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

func (s *localStore) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	name, err := objectName(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	raw, err := s.root.ReadFile(name + metaSuffix)
	if err != nil {
		return nil, ObjectInfo{}, notFound(err)
	}
	var meta localMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("decode metadata for %s: %w", key, err)
	}
	file, err := s.root.Open(name)
	if err != nil {
		return nil, ObjectInfo{}, notFound(err)
	}
	return file, ObjectInfo{Key: key, Size: meta.Size, ContentType: meta.ContentType, Metadata: meta.Metadata}, nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	for _, n := range []string{name, name + metaSuffix} {
		if err := s.root.Remove(n); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// objectName validates a slash-separated key relative to the store root.
func objectName(key string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(key))
	if cleaned == "." || cleaned == ".." || path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "../") || strings.HasSuffix(cleaned, metaSuffix) {
		return "", fmt.Errorf("invalid key: %q", key)
	}
	return cleaned, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
