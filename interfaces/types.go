package interfaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruteri/threshold-curator-kms/field"
)

// Share is one curator's fragment of a split secret: the sharing polynomial
// evaluated at Index. Index is in [1..n].
type Share struct {
	Epoch uint64
	Index int
	Value field.Element
}

// String omits the share value.
func (s Share) String() string {
	return fmt.Sprintf("Share{epoch=%d, index=%d}", s.Epoch, s.Index)
}

// Deal is everything a curator receives when a chain link is created.
// A curator keeps one holding per (ChainID, Epoch).
type Deal struct {
	ChainID string
	Epoch   uint64
	Share   Share

	// Threshold of the share set the share belongs to.
	Threshold int

	// Commitments are the Feldman commitments to the sharing polynomial.
	// Empty when the field is not a group.
	Commitments []field.Point

	// PairSeeds maps every other share index to the 32-byte seed this
	// curator shares with that index's holder. Seeds drive the zero-sharing
	// masks of the alpha protocol.
	PairSeeds map[int][]byte
}

// ContributionRequest asks a quorum member for its partial contribution.
type ContributionRequest struct {
	// Session uniquely identifies one run of the alpha protocol.
	Session string
	ChainID string
	Epoch   uint64

	// Quorum holds the share indices of all participating curators, sorted.
	Quorum []int

	// Point switches the protocol to exponent mode: the contribution is
	// (L_i(0) * y_i) * Point instead of a masked scalar. Nil in scalar mode.
	Point field.Point
}

// Partial is a curator's contribution to one alpha protocol session.
// Exactly one of Value (scalar mode) or Point (exponent mode) is set.
type Partial struct {
	Session string
	ChainID string
	Epoch   uint64
	Index   int
	Value   field.Element
	Point   field.Point
}

// Contributor is one curator as seen by the alpha protocol. Implementations
// own their shares exclusively and only ever emit partial contributions.
type Contributor interface {
	// ID returns a stable identifier for logging.
	ID() string

	// Ready reports the share index held for the chain's epoch. It returns
	// ErrCuratorUnavailable or ErrEpochNotFound when the curator cannot take
	// part.
	Ready(ctx context.Context, chainID string, epoch uint64) (int, error)

	// Contribute computes the partial contribution for the request.
	Contribute(ctx context.Context, req ContributionRequest) (Partial, error)
}

// Custodian is a contributor that can also receive deals.
type Custodian interface {
	Contributor

	// Accept stores the deal after verifying the share against the
	// commitments, failing with ErrInconsistentShares on mismatch.
	Accept(ctx context.Context, deal Deal) error
}

// RotationMode selects how a new chain link obtains its secret.
type RotationMode int

const (
	// RotationFresh samples an independent random secret for every epoch.
	RotationFresh RotationMode = iota

	// RotationReshare recovers the previous epoch's secret and re-splits it
	// with a new polynomial (proactive refresh of the same key).
	RotationReshare

	// RotationLinked samples a fresh secret and seals the previous epoch's
	// secret under the new epoch's key, so recovering the head unlocks the
	// whole history.
	RotationLinked
)

// String returns the mode name.
func (m RotationMode) String() string {
	switch m {
	case RotationFresh:
		return "fresh"
	case RotationReshare:
		return "reshare"
	case RotationLinked:
		return "linked"
	default:
		return "unknown"
	}
}

// ParseRotationMode parses a mode name as produced by String.
func ParseRotationMode(s string) (RotationMode, error) {
	switch strings.ToLower(s) {
	case "fresh", "":
		return RotationFresh, nil
	case "reshare":
		return RotationReshare, nil
	case "linked":
		return RotationLinked, nil
	default:
		return 0, fmt.Errorf("unknown rotation mode %q", s)
	}
}
