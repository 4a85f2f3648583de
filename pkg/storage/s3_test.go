package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+*params.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Bucket+"/"+*params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StorageStore(t *testing.T) {
	client := &fakeS3{objects: map[string]string{}}
	store := newS3Storage(client, "product-images", "https://cdn.example.com/")

	ref, err := store.Store(context.Background(), "products/p1/1.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", client.objects["product-images/products/p1/1.jpg"])

	url, err := store.URL(ref)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/products/p1/1.jpg", url)

	require.NoError(t, store.Delete(context.Background(), ref))
	assert.Empty(t, client.objects)
}

func TestS3StorageStoreError(t *testing.T) {
	store := newS3Storage(&fakeS3{putErr: errors.New("access denied")}, "b", "https://cdn")
	_, err := store.Store(context.Background(), "k", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}
