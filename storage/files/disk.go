package files

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

// DiskStorage keeps files under a root directory. Recorded paths are relative to it.
type DiskStorage struct {
	root string
}

var _ core.FileStorage = (*DiskStorage)(nil) // interface compliance check

func NewDiskStorage(root string) (*DiskStorage, error) {
	if root == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage directory")
	}
	return &DiskStorage{root: root}, nil
}

// resolve maps a key to a file under root, rejecting keys escaping it.
func (s *DiskStorage) resolve(key string) (string, string, error) {
	// rooting the key before cleaning drops any leading ".."
	key = path.Clean("/" + filepath.ToSlash(key))[1:]
	if key == "" {
		return "", "", errors.Errorf("invalid file key %q", key)
	}
	return key, filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *DiskStorage) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	key, fpath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating file directory")
	}

	// write to a temp file first so a failed upload never leaves a partial file behind
	tmp, err := os.CreateTemp(filepath.Dir(fpath), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "writing file")
	}
	if err = tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	if err = os.Rename(tmp.Name(), fpath); err != nil {
		return "", errors.Wrap(err, "moving file")
	}
	return key, nil
}

func (s *DiskStorage) Open(_ context.Context, p string) (io.ReadCloser, error) {
	_, fpath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fpath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *DiskStorage) Delete(_ context.Context, p string) error {
	_, fpath, err := s.resolve(p)
	if err != nil {
		return err
	}
	err = os.Remove(fpath)
	if os.IsNotExist(err) {
		return core.ErrFileNotFound
	}
	return errors.Wrap(err, "removing file")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// readerWithContext stops reading r once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
