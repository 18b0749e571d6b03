package rnchain

import (
	"context"
	"time"

	"github.com/ruteri/threshold-curator-kms/codec"
	"github.com/ruteri/threshold-curator-kms/metrics"
	"github.com/ruteri/threshold-curator-kms/sharing"
)

// EmergencyKit holds an epoch's data key split into byte shares for offline
// custodians. Any Threshold of the N parts rebuild the key without the
// curators.
type EmergencyKit struct {
	ChainID   string   `json:"chain_id"`
	Epoch     uint64   `json:"epoch"`
	Threshold int      `json:"threshold"`
	N         int      `json:"n"`
	Parts     [][]byte `json:"parts"`
}

// Key recombines the data key from a subset of parts.
func (k *EmergencyKit) Key(parts [][]byte) ([]byte, error) {
	return sharing.CombineBytes(parts, k.Threshold)
}

// EmergencyKit recovers the data key of epoch and splits it into 2t+1
// parts with threshold t (t >= 2). Like BreakGlass it needs no consent and
// is recorded in the audit log first.
func (c *Chain) EmergencyKit(ctx context.Context, epoch uint64, threshold int, requester, reason string) (_ *EmergencyKit, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpEmergency, err, time.Since(start)) }()

	// fail on bad parameters before anything is audited
	if _, err := sharing.SplitBytes([]byte{0}, threshold, 2*threshold+1); err != nil {
		return nil, err
	}

	link, err := c.audited(ctx, ActionEmergencyKit, epoch, requester, reason)
	if err != nil {
		return nil, err
	}
	result, err := c.recoverLink(ctx, link, c.currentContributors())
	if err != nil {
		return nil, err
	}

	key, err := codec.DeriveKey(result.Value, c.DataKeyInfo(epoch))
	if err != nil {
		return nil, err
	}
	defer wipeBytes(key)

	parts, err := sharing.SplitBytes(key, threshold, 2*threshold+1)
	if err != nil {
		return nil, err
	}
	return &EmergencyKit{
		ChainID:   c.id,
		Epoch:     epoch,
		Threshold: threshold,
		N:         len(parts),
		Parts:     parts,
	}, nil
}
