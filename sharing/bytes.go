package sharing

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// SplitBytes shares an arbitrary byte string over GF(2^8), producing n parts
// of which any t recombine. Parts carry their x-coordinate in the last byte.
// Byte sharing requires t >= 2 in addition to n = 2t+1.
func SplitBytes(secret []byte, t, n int) ([][]byte, error) {
	if t < 2 {
		return nil, fmt.Errorf("%w: byte sharing needs threshold >= 2, got %d", interfaces.ErrInvalidThreshold, t)
	}
	if n != 2*t+1 {
		return nil, fmt.Errorf("%w: n=%d must equal 2t+1=%d", interfaces.ErrInvalidThreshold, n, 2*t+1)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("cannot split an empty secret")
	}

	parts, err := shamir.Split(secret, n, t)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}
	return parts, nil
}

// CombineBytes recombines at least t parts produced by SplitBytes.
func CombineBytes(parts [][]byte, t int) ([]byte, error) {
	if t < 2 {
		return nil, fmt.Errorf("%w: byte sharing needs threshold >= 2, got %d", interfaces.ErrInvalidThreshold, t)
	}
	if len(parts) < t {
		return nil, fmt.Errorf("%w: have %d parts, need %d", interfaces.ErrInsufficientShares, len(parts), t)
	}

	secret, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInconsistentShares, err)
	}
	return secret, nil
}
