package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

type localStorage struct {
	dir     string
	baseURL string
}

var _ core.FileStorage = (*localStorage)(nil)

func NewLocalStorage(conf *core.Config) core.FileStorage {
	dir := conf.Storage.LocalDir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(conf.WorkDir, dir)
	}
	return &localStorage{dir: dir, baseURL: strings.TrimRight(conf.Storage.BaseURL, "/")}
}

func (s *localStorage) Save(_ context.Context, name string, r io.Reader, _ string) (string, error) {
	key := objectKey(name)
	fp := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}
	f, err := os.Create(fp)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fp)
		return "", errors.Wrap(err, "writing file")
	}
	if err := f.Close(); err != nil {
		os.Remove(fp)
		return "", errors.Wrap(err, "closing file")
	}
	return s.baseURL + "/" + key, nil
}

func (s *localStorage) Delete(_ context.Context, url string) error {
	key := strings.TrimPrefix(url, s.baseURL+"/")
	if key == url || strings.Contains(key, "..") {
		return nil // not ours
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(path.Clean(key))))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
