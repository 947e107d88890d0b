package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/nestward/nestward/blobstore"
)

// ErrConflict is returned when a conditional write fails because the
// object already exists.
var ErrConflict = errors.New("object already exists")

// ExpressStore implements blobstore.Store for S3 Express One Zone.
//
// S3 Express One Zone is a high-performance, single-Availability-Zone
// storage class with consistent single-digit millisecond access. Batch
// runs that archive thousands of short walks benefit from the lower
// per-object latency.
//
// Key differences from standard S3:
//   - Uses directory buckets (bucket names end with --azid--x-s3)
//   - Requires CreateSession for authentication
//   - Supports conditional writes (If-None-Match) for atomic commits
type ExpressStore struct {
	client Client
	bucket string
	prefix string
}

// NewExpressStore creates an S3 Express One Zone store.
// The bucket must be a directory bucket (ending with --azid--x-s3).
func NewExpressStore(client Client, bucket, rootPrefix string) *ExpressStore {
	return &ExpressStore{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *ExpressStore) key(key string) string {
	return path.Join(s.prefix, key)
}

// Open opens a blob for reading.
func (s *ExpressStore) Open(ctx context.Context, key string) (blobstore.Blob, error) {
	return openBlob(ctx, s.client, s.bucket, s.key(key))
}

// Put writes a blob, replacing any existing object.
func (s *ExpressStore) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := manager.NewUploader(s.client).Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   r,
	})
	return err
}

// PutIfNotExists writes a blob only if the key is vacant, using the
// conditional writes supported by directory buckets. Returns ErrConflict
// if the key already exists.
func (s *ExpressStore) PutIfNotExists(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "PreconditionFailed" || code == "ConditionalRequestConflict" {
				return ErrConflict
			}
		}
		return err
	}
	return nil
}

// Create starts a streaming upload, finalized on Close.
func (s *ExpressStore) Create(ctx context.Context, key string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()

	blob := &baseWritableBlob{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := manager.NewUploader(s.client).Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		blob.done <- err
	}()

	return blob, nil
}

// Delete removes a blob.
func (s *ExpressStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	return err
}

// List yields all keys under prefix in lexical order.
func (s *ExpressStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return listKeys(ctx, s.client, s.bucket, s.key(prefix), s.prefix)
}

// Exists reports whether a blob exists.
func (s *ExpressStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
