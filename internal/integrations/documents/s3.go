// Package documents stores uploaded claim documents.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the minimal S3 interface required by S3Sink.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes documents to a single bucket.
type S3Sink struct {
	api    s3API
	bucket string
}

func NewS3Sink(api s3API, bucket string) (*S3Sink, error) {
	if api == nil {
		return nil, errors.New("documents: s3 api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("documents: bucket must not be empty")
	}
	return &S3Sink{api: api, bucket: bucket}, nil
}

// Put uploads body under key and returns the object's s3:// location.
func (s *S3Sink) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("documents: put object %q: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// cleanKey rejects keys that could escape the sink's namespace.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("documents: key must not be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("documents: invalid key %q", key)
		}
	}
	return key, nil
}
