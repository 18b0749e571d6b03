// Package storage provides content-addressed storage with pluggable backends
// for the data the curators replicate: signed ciphertext produced by the
// codec and the public chain records (links, data references and
// break-the-glass audit entries). Shares and secrets never pass through
// this package.
//
// Content is identified by the SHA-256 hash of the data and each content
// type lives in its own namespace:
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS storage through the node's mutable file system
//   - Vault KV v2 storage with token authentication
//
// # Storage URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// S3, IPFS and Vault locations without a path keep their objects under
// interfaces.DefaultRoot.
//
// Examples:
//
//   - file:///var/lib/curator/
//   - s3://ACCESS:SECRET@bucket/prefix?region=eu-west-1&endpoint=https://minio:9000&path_style=true
//   - ipfs://127.0.0.1:5001/curator?timeout=10s
//   - vault://TOKEN@vault.example.com:8200/secret/curator-1?ca_cert=/etc/vault/ca.pem
//
// # Replication
//
// MultiStorageBackend stores to every available backend, typically one per
// curator, and fails unless the configured minimum number of replicas
// accepted the data. Fetch falls back through the backends and rejects any
// copy whose hash does not match the requested content ID.
//
//	factory := storage.NewStorageBackendFactory(logger)
//	locations, err := storage.ParseLocations([]string{
//	    "file:///var/lib/curator-a/?replicas=2",
//	    "s3://bucket-b/ciphertext?region=eu-west-1",
//	})
//	multi, err := factory.CreateMultiBackend(locations)
//	id, err := multi.Store(ctx, ciphertext, interfaces.CiphertextType)
package storage
