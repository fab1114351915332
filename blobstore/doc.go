// Package blobstore provides storage abstraction for persisted model
// snapshots.
//
// Store is the interface for reading and writing named blobs; snapshots
// are written whole and immutable, so the interface deals in complete
// byte slices rather than streams. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with atomic writes
//   - CachingStore: read-through cache over any Store
//   - Throttled: rate-limited wrapper over any Store
//   - s3.Store: Amazon S3 with parallel multipart uploads
//   - minio.Store: any S3-compatible endpoint via the MinIO client
package blobstore
