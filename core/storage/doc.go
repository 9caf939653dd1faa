// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client, which speaks to both AWS S3 and self-hosted
// MinIO, and exposes two levels of API:
//
//   - Client: the subset of the minio client used by the service. It is an
//     interface so that tests can substitute the testify mock in
//     core/storage/mocks.
//   - ObjectStore: a byte-level Fetch/Put/Delete capability consumed by the
//     reconciler. Store implements it on top of any Client.
//
// # Error Classification
//
// Store translates S3 error responses into core/failure classes:
// throttling, timeouts and 5xx responses become failure.StorageTransient,
// everything else (AccessDenied, NoSuchKey, NoSuchBucket, ...) becomes
// failure.StoragePermanent. Network level errors are passed through and
// classified by failure.Classify.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	store := storage.NewStore(client)
//	body, err := store.Fetch(ctx, "catalogue-population", "transformed/cat.json")
package storage
