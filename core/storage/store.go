package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"catalogue-ingester/core/failure"

	"github.com/minio/minio-go/v7"
)

// ObjectStore is the byte-level capability used by the reconciler.
// Errors returned by implementations carry a failure class.
type ObjectStore interface {
	// Fetch returns the full body of an object.
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes an object. Writing the same body twice is indistinguishable from writing it once.
	Put(ctx context.Context, bucket, key string, body []byte, contentType, cacheControl string) error
	// Delete removes an object. Deleting a missing object succeeds.
	Delete(ctx context.Context, bucket, key string) error
}

// Store implements ObjectStore on top of a Client.
type Store struct {
	client Client
}

// NewStore creates a Store backed by client.
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// Fetch downloads bucket/key into memory.
func (s *Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, classify(err))
	}
	defer reader.Close()

	// minio reports missing objects on the first read, not on GetObject.
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, classify(err))
	}
	return data, nil
}

// Put uploads body to bucket/key.
func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType, cacheControl string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	}
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, classify(err))
	}
	return nil
}

// Delete removes bucket/key.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, classify(err))
	}
	return nil
}

// transientCodes are S3 error codes that may clear on retry.
var transientCodes = map[string]bool{
	"SlowDown":                   true,
	"RequestTimeout":             true,
	"RequestTimeTooSkewed":       true,
	"InternalError":              true,
	"ServiceUnavailable":         true,
	"OperationAborted":           true,
	"XMinioServerNotInitialized": true,
	"XMinioStorageFull":          true,
	"XMinioReadQuorum":           true,
	"XMinioWriteQuorum":          true,
	"TooManyRequests":            true,
	"RequestLimitExceeded":       true,
	"ThrottlingException":        true,
}

// classify tags a minio error with a failure class. Errors that are not S3
// error responses (network, context) are returned untouched and left to
// failure.Classify.
func classify(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "" && resp.StatusCode == 0 {
		return err
	}

	if transientCodes[resp.Code] {
		return failure.StorageTransient.Wrap(err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return failure.StorageTransient.Wrap(err)
	default:
		// AccessDenied, NoSuchKey, NoSuchBucket, InvalidArgument, ...
		return failure.StoragePermanent.Wrap(err)
	}
}
