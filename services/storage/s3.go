package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

type s3Storage struct {
	client  *s3.S3
	bucket  string
	baseURL string
}

var _ core.FileStorage = (*s3Storage)(nil)

// NewS3Storage uses the default AWS credentials chain (env vars, shared config or instance role).
func NewS3Storage(conf *core.Config) (core.FileStorage, error) {
	if conf.Storage.S3Bucket == "" {
		return nil, errors.New("storage.s3Bucket is not set")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(conf.Storage.S3Region)})
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}

	baseURL := strings.TrimRight(conf.Storage.BaseURL, "/")
	if baseURL == "" || strings.HasPrefix(baseURL, "/") {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", conf.Storage.S3Bucket, conf.Storage.S3Region)
	}
	return &s3Storage{client: s3.New(sess), bucket: conf.Storage.S3Bucket, baseURL: baseURL}, nil
}

func (s *s3Storage) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	key := objectKey(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", errors.Wrap(err, "uploading to S3")
	}
	return s.baseURL + "/" + key, nil
}

func (s *s3Storage) Delete(ctx context.Context, url string) error {
	key := strings.TrimPrefix(url, s.baseURL+"/")
	if key == url {
		return nil
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrap(err, "deleting from S3")
}
