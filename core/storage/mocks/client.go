// Package mocks provides a testify mock of storage.Client.
package mocks

import (
	"context"
	"io"

	"catalogue-ingester/core/storage"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

var _ storage.Client = (*Client)(nil)

// Client records calls made through storage.Client.
type Client struct {
	mock.Mock
}

// NewClient returns a Client whose expectations are asserted at test cleanup.
func NewClient(t mock.TestingT) *Client {
	c := new(Client)
	c.Test(t)
	if ct, ok := t.(interface{ Cleanup(func()) }); ok {
		ct.Cleanup(func() { c.AssertExpectations(t) })
	}
	return c
}

// OnGet expects a GetObject of bucket/key and answers with body or err.
func (m *Client) OnGet(bucket, key string, body io.ReadCloser, err error) *mock.Call {
	return m.On("GetObject", mock.Anything, bucket, key, mock.Anything).Return(body, err)
}

// OnPut expects a PutObject of bucket/key whose options satisfy match.
func (m *Client) OnPut(bucket, key string, match func(minio.PutObjectOptions) bool, err error) *mock.Call {
	var opts any = mock.Anything
	if match != nil {
		opts = mock.MatchedBy(match)
	}
	return m.On("PutObject", mock.Anything, bucket, key, mock.Anything, mock.Anything, opts).
		Return(minio.UploadInfo{Bucket: bucket, Key: key}, err)
}

// OnRemove expects a RemoveObject of bucket/key.
func (m *Client) OnRemove(bucket, key string, err error) *mock.Call {
	return m.On("RemoveObject", mock.Anything, bucket, key, mock.Anything).Return(err)
}

func (m *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	ret := m.Called(ctx, bucketName)
	return ret.Bool(0), ret.Error(1)
}

func (m *Client) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	ret := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	info, _ := ret.Get(0).(minio.UploadInfo)
	return info, ret.Error(1)
}

func (m *Client) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	ret := m.Called(ctx, bucketName, objectName, opts)
	body, _ := ret.Get(0).(io.ReadCloser)
	return body, ret.Error(1)
}

func (m *Client) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}
