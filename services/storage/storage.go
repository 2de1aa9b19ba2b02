// Package storage saves uploaded files (child photos, documents, product images) on disk or in S3.
package storage

import (
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

var errUnknownBackend = errors.New("unknown storage backend")

// New returns the FileStorage selected by conf.Storage.Backend.
func New(conf *core.Config) (core.FileStorage, error) {
	switch conf.Storage.Backend {
	case "", "local":
		return NewLocalStorage(conf), nil
	case "s3":
		return NewS3Storage(conf)
	default:
		return nil, errors.Wrap(errUnknownBackend, conf.Storage.Backend)
	}
}

// objectKey keeps the directory and extension of `name` and makes the file name unique.
func objectKey(name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))[1:]
	dir, file := path.Split(name)
	return path.Join(dir, uuid.NewString()+strings.ToLower(path.Ext(file)))
}
