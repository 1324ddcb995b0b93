package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/afilmory/builder/interfaces"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves a handful of S3API calls from a map.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not found", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	// Two pages to exercise the pager callback
	first := &s3.ListObjectsV2Output{Contents: []*s3.Object{
		{Key: aws.String("originals/b.jpg"), Size: aws.Int64(2), ETag: aws.String(`"etag-b"`), LastModified: aws.Time(modified)},
		{Key: aws.String("originals/dir/"), Size: aws.Int64(0)},
	}}
	second := &s3.ListObjectsV2Output{Contents: []*s3.Object{
		{Key: aws.String("originals/a.jpg"), Size: aws.Int64(1), ETag: aws.String(`"etag-a"`), LastModified: aws.Time(modified)},
	}}
	if fn(first, false) {
		fn(second, true)
	}
	return nil
}

func (f *fakeS3) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, opts ...request.Option) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{"originals/a.jpg": []byte("a")}}
	backend := newS3BackendWithClient(client, "photos", "originals", "s3://photos/originals",
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	data, err := backend.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	_, err = backend.Get(ctx, "missing.jpg")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	require.NoError(t, backend.Put(ctx, "manifest.json", []byte("{}"), "application/json"))
	require.Len(t, client.puts, 1)
	assert.Equal(t, "originals/manifest.json", aws.StringValue(client.puts[0].Key))
	assert.Equal(t, "application/json", aws.StringValue(client.puts[0].ContentType))

	objects, err := backend.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a.jpg", objects[0].Key)
	assert.Equal(t, "etag-a", objects[0].ETag)
	assert.Equal(t, "b.jpg", objects[1].Key)

	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "s3://photos/originals", backend.LocationURI())
}
