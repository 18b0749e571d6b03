package alpha

import (
	"fmt"
	"slices"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/sharing"
)

// Contribution computes the partial contribution of the holder of share for
// req. In scalar mode it is L_i(0)*y_i + m_i; in exponent mode it is
// (L_i(0)*y_i)*P. The share itself never leaves this function.
func Contribution(f field.Field, share interfaces.Share, seeds map[int][]byte, req interfaces.ContributionRequest) (interfaces.Partial, error) {
	if req.Epoch != share.Epoch {
		return interfaces.Partial{}, fmt.Errorf("%w: request for epoch %d, share of epoch %d", interfaces.ErrInconsistentShares, req.Epoch, share.Epoch)
	}
	if err := checkQuorum(req.Quorum); err != nil {
		return interfaces.Partial{}, err
	}
	if !slices.Contains(req.Quorum, share.Index) {
		return interfaces.Partial{}, fmt.Errorf("%w: index %d not in quorum %v", interfaces.ErrInconsistentShares, share.Index, req.Quorum)
	}

	lambda, err := sharing.LagrangeAtZero(f, req.Quorum, share.Index)
	if err != nil {
		return interfaces.Partial{}, err
	}
	weighted := lambda.Mul(share.Value)

	partial := interfaces.Partial{
		Session: req.Session,
		ChainID: req.ChainID,
		Epoch:   req.Epoch,
		Index:   share.Index,
	}

	if req.Point != nil {
		g, ok := field.AsGroup(f)
		if !ok {
			return interfaces.Partial{}, fmt.Errorf("%w: field %s", ErrNotAGroup, f.Name())
		}
		partial.Point = g.ScalarMult(weighted, req.Point)
		return partial, nil
	}

	mask, err := Mask(f, share.Index, seeds, req.Session, req.Quorum)
	if err != nil {
		return interfaces.Partial{}, err
	}
	partial.Value = weighted.Add(mask)
	return partial, nil
}

// checkQuorum requires strictly increasing positive indices.
func checkQuorum(quorum []int) error {
	if len(quorum) == 0 {
		return fmt.Errorf("%w: empty quorum", interfaces.ErrInsufficientShares)
	}
	for k, idx := range quorum {
		if idx < 1 || (k > 0 && quorum[k-1] >= idx) {
			return fmt.Errorf("%w: malformed quorum %v", interfaces.ErrInconsistentShares, quorum)
		}
	}
	return nil
}
