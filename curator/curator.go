package curator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/threshold-curator-kms/alpha"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/metrics"
	"github.com/ruteri/threshold-curator-kms/sharing"
	"go.uber.org/atomic"
)

// slot names the chain link a holding belongs to.
type slot struct {
	chainID string
	epoch   uint64
}

// holding is what a curator keeps for one chain link.
type holding struct {
	share     interfaces.Share
	threshold int
	seeds     map[int][]byte
}

// Curator holds at most one share per chain link and answers contribution
// requests for it. Chains sharing a committee never see each other's
// holdings. Shares never leave the curator; only partial
// contributions do.
type Curator struct {
	mu       sync.RWMutex
	id       string
	field    field.Field
	log      *slog.Logger
	holdings map[slot]*holding

	available *atomic.Bool
	served    *atomic.Uint64
}

// New creates an empty, available curator. An empty id is replaced with a
// random one.
func New(id string, f field.Field, log *slog.Logger) *Curator {
	if id == "" {
		id = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Curator{
		id:        id,
		field:     f,
		log:       log.With(slog.String("curator", id)),
		holdings:  make(map[slot]*holding),
		available: atomic.NewBool(true),
		served:    atomic.NewUint64(0),
	}
}

// NewCommittee creates n curators named curator-1..curator-n.
func NewCommittee(n int, f field.Field, log *slog.Logger) []*Curator {
	committee := make([]*Curator, n)
	for i := range committee {
		committee[i] = New(fmt.Sprintf("curator-%d", i+1), f, log)
	}
	return committee
}

func (c *Curator) ID() string { return c.id }

// Field returns the field the curator's shares live in.
func (c *Curator) Field() field.Field { return c.field }

// SetAvailable toggles whether the curator takes part in recoveries. It
// simulates a curator going offline without dropping its shares.
func (c *Curator) SetAvailable(available bool) {
	c.available.Store(available)
}

func (c *Curator) Available() bool {
	return c.available.Load()
}

// Served returns the number of partial contributions produced so far.
func (c *Curator) Served() uint64 {
	return c.served.Load()
}

// Accept stores a deal. The share is checked against the Feldman commitments
// when the deal carries them; a mismatch yields ErrInconsistentShares and the
// deal is dropped. A later deal for the same chain and epoch replaces the
// earlier one; deals of other chains are kept apart.
func (c *Curator) Accept(ctx context.Context, deal interfaces.Deal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	share := deal.Share
	if deal.ChainID == "" {
		return fmt.Errorf("%w: deal for epoch %d names no chain", interfaces.ErrInconsistentShares, deal.Epoch)
	}
	if share.Epoch != deal.Epoch {
		return fmt.Errorf("%w: share epoch %d in deal for epoch %d", interfaces.ErrInconsistentShares, share.Epoch, deal.Epoch)
	}
	if share.Index < 1 || share.Value == nil {
		return fmt.Errorf("%w: malformed share %d", interfaces.ErrInconsistentShares, share.Index)
	}
	if share.Value.Field().Modulus().Cmp(c.field.Modulus()) != 0 {
		return fmt.Errorf("%w: share from field %s, curator uses %s", interfaces.ErrInconsistentShares, share.Value.Field().Name(), c.field.Name())
	}
	if deal.Threshold < 1 {
		return fmt.Errorf("%w: threshold %d", interfaces.ErrInvalidThreshold, deal.Threshold)
	}

	if len(deal.Commitments) > 0 {
		g, ok := field.AsGroup(c.field)
		if !ok {
			return fmt.Errorf("%w: commitments over field %s", alpha.ErrNotAGroup, c.field.Name())
		}
		if len(deal.Commitments) != deal.Threshold {
			return fmt.Errorf("%w: %d commitments for threshold %d", interfaces.ErrInconsistentShares, len(deal.Commitments), deal.Threshold)
		}
		if err := sharing.VerifyShare(g, share, deal.Commitments); err != nil {
			c.log.Warn("Rejected share failing commitment check",
				slog.String("chain", deal.ChainID),
				slog.Uint64("epoch", deal.Epoch),
				slog.Int("index", share.Index))
			return err
		}
	}

	seeds := make(map[int][]byte, len(deal.PairSeeds))
	for j, seed := range deal.PairSeeds {
		if j == share.Index {
			continue
		}
		seeds[j] = slices.Clone(seed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := slot{chainID: deal.ChainID, epoch: deal.Epoch}
	if old, exists := c.holdings[key]; exists {
		// a dealer retrying a failed link creation re-deals the same epoch
		c.log.Warn("Replacing share of an unfinished deal",
			slog.String("chain", deal.ChainID),
			slog.Uint64("epoch", deal.Epoch))
		wipeHolding(c.field, old)
	}
	c.holdings[key] = &holding{share: share, threshold: deal.Threshold, seeds: seeds}

	c.log.Debug("Accepted share",
		slog.String("chain", deal.ChainID),
		slog.Uint64("epoch", deal.Epoch),
		slog.Int("index", share.Index))
	return nil
}

// Ready reports the index of the share held for the chain's epoch.
func (c *Curator) Ready(ctx context.Context, chainID string, epoch uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !c.available.Load() {
		return 0, interfaces.ErrCuratorUnavailable
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.holdings[slot{chainID: chainID, epoch: epoch}]
	if !ok {
		return 0, fmt.Errorf("%w: curator %s holds no share for epoch %d of chain %s", interfaces.ErrEpochNotFound, c.id, epoch, chainID)
	}
	return h.share.Index, nil
}

// Contribute computes this curator's partial for a protocol session.
func (c *Curator) Contribute(ctx context.Context, req interfaces.ContributionRequest) (interfaces.Partial, error) {
	partial, err := c.contribute(ctx, req)
	metrics.RecordContribution(err)
	if err != nil {
		return interfaces.Partial{}, err
	}
	c.served.Inc()
	return partial, nil
}

func (c *Curator) contribute(ctx context.Context, req interfaces.ContributionRequest) (interfaces.Partial, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Partial{}, err
	}
	if !c.available.Load() {
		return interfaces.Partial{}, interfaces.ErrCuratorUnavailable
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.holdings[slot{chainID: req.ChainID, epoch: req.Epoch}]
	if !ok {
		return interfaces.Partial{}, fmt.Errorf("%w: curator %s holds no share for epoch %d of chain %s", interfaces.ErrEpochNotFound, c.id, req.Epoch, req.ChainID)
	}
	if len(req.Quorum) != h.threshold {
		return interfaces.Partial{}, fmt.Errorf("%w: quorum of %d for threshold %d", interfaces.ErrInconsistentShares, len(req.Quorum), h.threshold)
	}
	return alpha.Contribution(c.field, h.share, h.seeds, req)
}

// Epochs lists the epochs of chainID the curator holds shares for,
// ascending.
func (c *Curator) Epochs(chainID string) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var epochs []uint64
	for key := range c.holdings {
		if key.chainID == chainID {
			epochs = append(epochs, key.epoch)
		}
	}
	slices.Sort(epochs)
	return epochs
}

// Chains maps every chain the curator holds shares for to its epochs.
func (c *Curator) Chains() map[string][]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chains := make(map[string][]uint64)
	for key := range c.holdings {
		chains[key.chainID] = append(chains[key.chainID], key.epoch)
	}
	for _, epochs := range chains {
		slices.Sort(epochs)
	}
	return chains
}

// Forget drops the share and seeds of one chain link.
func (c *Curator) Forget(chainID string, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := slot{chainID: chainID, epoch: epoch}
	h, ok := c.holdings[key]
	if !ok {
		return
	}
	wipeHolding(c.field, h)
	delete(c.holdings, key)
}

func wipeHolding(f field.Field, h *holding) {
	h.share.Value = f.Zero()
	for _, seed := range h.seeds {
		wipeBytes(seed)
	}
}

// Status is a snapshot of the curator's state without any secret material.
type Status struct {
	ID        string              `json:"id"`
	Field     string              `json:"field"`
	Available bool                `json:"available"`
	Chains    map[string][]uint64 `json:"chains"`
	Served    uint64              `json:"served"`
}

func (c *Curator) Status() Status {
	return Status{
		ID:        c.id,
		Field:     c.field.Name(),
		Available: c.available.Load(),
		Chains:    c.Chains(),
		Served:    c.served.Load(),
	}
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
