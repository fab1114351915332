package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crosscat/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-crosscat"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Put and Get
	data := []byte("snapshot payload")
	require.NoError(t, store.Put(ctx, "views/snap-001", data))

	got, err := store.Get(ctx, "views/snap-001")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// List
	names, err := store.List(ctx, "views/")
	require.NoError(t, err)
	assert.Contains(t, names, "views/snap-001")

	// Delete is idempotent
	require.NoError(t, store.Delete(ctx, "views/snap-001"))
	require.NoError(t, store.Delete(ctx, "views/snap-001"))

	_, err = store.Get(ctx, "views/snap-001")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
