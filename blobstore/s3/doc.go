// Package s3 provides an Amazon S3 implementation of the
// blobstore.Store interface, plus a DynamoDB-backed commit store for
// atomically advancing the "latest snapshot" pointer.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "views/")
//
// # Features
//
//   - Multipart uploads with CRC32C integrity validation
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Optional DynamoDB commit log for safe concurrent writers
package s3
