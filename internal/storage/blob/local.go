package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

const (
	defaultLocalDir = "./data/generations"
	sidecarSuffix   = ".meta"
)

// localStore keeps each object as a file under root plus a JSON sidecar with
// its content type and metadata.
type localStore struct {
	root string
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func newLocalStore(cfg config.StorageLocalConfig) (*localStore, error) {
	root := strings.TrimSpace(cfg.Directory)
	if root == "" {
		root = defaultLocalDir
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create local storage dir: %w", err)
	}
	return &localStore{root: root}, nil
}

func (s *localStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	written, err := writeAtomic(path, body)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("write %s: %w", key, err)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = guessContentType(path)
	}
	meta, err := json.Marshal(sidecar{ContentType: contentType, Size: written, Metadata: opts.Metadata})
	if err != nil {
		return ObjectInfo{}, err
	}
	if _, err := writeAtomic(path+sidecarSuffix, strings.NewReader(string(meta))); err != nil {
		return ObjectInfo{}, fmt.Errorf("write %s metadata: %w", key, err)
	}
	return ObjectInfo{Key: key, Size: written, ContentType: contentType, Metadata: opts.Metadata}, nil
}

func (s *localStore) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, ErrNotFound
	}
	if err != nil {
		return nil, ObjectInfo{}, err
	}

	info := ObjectInfo{Key: key}
	meta, err := readSidecar(path + sidecarSuffix)
	switch {
	case err == nil:
		info.Size, info.ContentType, info.Metadata = meta.Size, meta.ContentType, meta.Metadata
	case errors.Is(err, fs.ErrNotExist):
		// objects copied in by hand have no sidecar
		if st, statErr := file.Stat(); statErr == nil {
			info.Size = st.Size()
		}
		info.ContentType = guessContentType(path)
	default:
		file.Close()
		return nil, ObjectInfo{}, err
	}
	return file, info, nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + sidecarSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// resolve maps key onto a path below root, rejecting escapes and sidecar names.
func (s *localStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if cleaned == "." || filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || strings.HasSuffix(cleaned, sidecarSuffix) {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}

func writeAtomic(path string, body io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	return written, os.Rename(tmp.Name(), path)
}

func readSidecar(path string) (sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

func guessContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
