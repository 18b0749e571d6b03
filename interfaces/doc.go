// Package interfaces defines core interfaces and types for the threshold
// curator key-management engine, separating interface definitions from
// implementations.
//
// # Protocol Types
//
// Share: one curator's fragment (epoch, index, value) of a split secret.
//
// Deal: what a curator receives when a chain link is created: its share,
// the Feldman commitments of the sharing polynomial and the pairwise seeds
// used for zero-sharing masks.
//
// ContributionRequest / Partial: the single round of the alpha protocol. A
// quorum member answers a request with its partial contribution, never its
// raw share.
//
// # Curator Interfaces
//
// Contributor: a curator as seen by the alpha protocol (local or remote).
//
// Custodian: a contributor that also accepts deals.
//
// # Storage Interfaces
//
// StorageBackend: content-addressed storage for signed ciphertext and the
// public chain records (links, data references, audit entries) on file, S3,
// IPFS or Vault.
//
// StorageBackendLocation: a parsed location URI. Remote stores share one
// namespace root, DefaultRoot unless the URI names another.
//
// # Errors
//
// The error taxonomy of the engine: ErrInvalidThreshold, ErrArithmetic,
// ErrInsufficientShares, ErrInconsistentShares and ErrEpochNotFound, plus
// the consent and chain integrity errors. All are returned wrapped with
// context and should be tested with errors.Is.
package interfaces
