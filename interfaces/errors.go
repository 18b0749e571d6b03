package interfaces

import (
	"errors"

	"github.com/ruteri/threshold-curator-kms/field"
)

var (
	// ErrInvalidThreshold is returned when the (t, n) pair is malformed.
	// Every share set requires t >= 1 and n = 2t+1.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrArithmetic is returned when a non-invertible field element is
	// encountered where an inverse is required.
	ErrArithmetic = field.ErrArithmetic

	// ErrInsufficientShares is returned when fewer than t valid shares or
	// contributions are available for a reconstruction.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrInconsistentShares is returned when shares disagree with each other,
	// indicating corruption or a faulty curator.
	ErrInconsistentShares = errors.New("inconsistent shares")

	// ErrEpochNotFound is returned for a chain index out of range.
	ErrEpochNotFound = errors.New("epoch not found")

	// ErrConsentRequired is returned when a chain owned by a data subject is
	// recovered without the subject's consent.
	ErrConsentRequired = errors.New("data subject consent required")

	// ErrConsentInvalid is returned for a consent with a bad signature, for a
	// different chain or epoch, or a replayed nonce.
	ErrConsentInvalid = errors.New("invalid data subject consent")

	// ErrChainBroken is returned when link hashes or signatures do not verify.
	ErrChainBroken = errors.New("chain integrity violated")

	// ErrCuratorUnavailable is returned by a contributor that cannot take part
	// in a recovery right now.
	ErrCuratorUnavailable = errors.New("curator unavailable")
)
