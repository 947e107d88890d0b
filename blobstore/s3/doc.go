// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("nestward/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	arc := archive.New(store)
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads with CRC32C checksums for large traces
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// # Concurrent Commits
//
// CommitStore layers DynamoDB conditional writes on top of any store so
// concurrent archivers can advance the manifest pointer without losing
// commits. ExpressStore targets S3 Express One Zone directory buckets
// and offers PutIfNotExists through native conditional writes.
package s3
