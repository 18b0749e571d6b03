package sharing

import (
	"fmt"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// Commit returns the Feldman commitments C_k = a_k*B of the polynomial
// coefficients.
func Commit(g field.Group, p *Polynomial) []field.Point {
	commitments := make([]field.Point, len(p.coeffs))
	for k, c := range p.coeffs {
		commitments[k] = g.ScalarBaseMult(c)
	}
	return commitments
}

// VerifyShare checks y*B == sum_k C_k * i^k for the share (i, y). It returns
// ErrInconsistentShares when the share does not match the commitments.
func VerifyShare(g field.Group, share interfaces.Share, commitments []field.Point) error {
	if len(commitments) == 0 {
		return fmt.Errorf("%w: no commitments to verify share %d against", interfaces.ErrInconsistentShares, share.Index)
	}
	if share.Index < 1 || share.Value == nil {
		return fmt.Errorf("%w: malformed share %d", interfaces.ErrInconsistentShares, share.Index)
	}

	x := g.FromUint64(uint64(share.Index))
	expected := commitments[len(commitments)-1]
	for k := len(commitments) - 2; k >= 0; k-- {
		expected = g.ScalarMult(x, expected).Add(commitments[k])
	}

	if !g.ScalarBaseMult(share.Value).Equal(expected) {
		return fmt.Errorf("%w: share %d does not match commitments", interfaces.ErrInconsistentShares, share.Index)
	}
	return nil
}
