package alpha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/metrics"
)

// ErrNotAGroup is returned when exponent mode is requested over a field
// without an associated group.
var ErrNotAGroup = errors.New("field has no associated group")

// Request selects the chain link to recover and the protocol mode.
type Request struct {
	ChainID string
	Epoch   uint64

	// Point switches to exponent mode: the result is secret*Point.
	Point field.Point
}

// Timings of the protocol phases of the successful attempt.
type Timings struct {
	Quorum   time.Duration
	Partials time.Duration
	Combine  time.Duration
}

// Total returns the sum of all phases.
func (t Timings) Total() time.Duration {
	return t.Quorum + t.Partials + t.Combine
}

// Result of one protocol run. Exactly one of Value and Point is set.
type Result struct {
	Session  string
	ChainID  string
	Epoch    uint64
	Quorum   []int
	Value    field.Element
	Point    field.Point
	Timings  Timings
	Attempts int
}

// Coordinator runs the alpha protocol over an explicit set of contributors.
// It never sees a share: it fixes the quorum, collects exactly t partial
// contributions and sums them.
type Coordinator struct {
	field     field.Field
	threshold int
	log       *slog.Logger
}

// NewCoordinator creates a coordinator for share sets of threshold t.
func NewCoordinator(f field.Field, threshold int, log *slog.Logger) (*Coordinator, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d must be at least 1", interfaces.ErrInvalidThreshold, threshold)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{field: f, threshold: threshold, log: log}, nil
}

// Run executes the protocol. Contributors that are unavailable during the
// quorum probe are skipped; a quorum member that fails to contribute is
// excluded and the protocol restarts with a new session and quorum. Fewer
// than t usable contributors yield ErrInsufficientShares. A malformed
// partial aborts with ErrInconsistentShares.
func (c *Coordinator) Run(ctx context.Context, req Request, contributors []interfaces.Contributor) (*Result, error) {
	if req.Point != nil {
		if _, ok := field.AsGroup(c.field); !ok {
			return nil, fmt.Errorf("%w: field %s", ErrNotAGroup, c.field.Name())
		}
	}

	excluded := make(map[interfaces.Contributor]bool)
	for attempt := 1; ; attempt++ {
		candidates := make([]interfaces.Contributor, 0, len(contributors))
		for _, contributor := range contributors {
			if !excluded[contributor] {
				candidates = append(candidates, contributor)
			}
		}

		result, failed, err := c.runOnce(ctx, req, candidates)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}
		if len(failed) == 0 {
			return nil, err
		}

		for _, contributor := range failed {
			excluded[contributor] = true
		}
		c.log.Warn("Restarting alpha protocol without failed contributors",
			slog.String("chain", req.ChainID),
			slog.Uint64("epoch", req.Epoch),
			slog.Int("attempt", attempt),
			slog.Int("excluded", len(excluded)),
			"err", err)
	}
}

type readiness struct {
	contributor interfaces.Contributor
	index       int
	err         error
}

type outcome struct {
	contributor interfaces.Contributor
	index       int
	partial     interfaces.Partial
	err         error
}

// runOnce performs a single attempt. On a contribution failure it returns the
// contributors to exclude from the next attempt.
func (c *Coordinator) runOnce(ctx context.Context, req Request, candidates []interfaces.Contributor) (*Result, []interfaces.Contributor, error) {
	var timings Timings

	start := time.Now()
	members, err := c.selectQuorum(ctx, req, candidates)
	timings.Quorum = time.Since(start)
	metrics.RecordPhase(metrics.PhaseQuorum, timings.Quorum)
	if err != nil {
		return nil, nil, err
	}

	quorum := make([]int, 0, len(members))
	for idx := range members {
		quorum = append(quorum, idx)
	}
	slices.Sort(quorum)

	contribution := interfaces.ContributionRequest{
		Session: uuid.NewString(),
		ChainID: req.ChainID,
		Epoch:   req.Epoch,
		Quorum:  quorum,
		Point:   req.Point,
	}

	start = time.Now()
	partials, failed, err := c.collectPartials(ctx, contribution, members)
	timings.Partials = time.Since(start)
	metrics.RecordPhase(metrics.PhasePartials, timings.Partials)
	if err != nil {
		return nil, failed, err
	}

	start = time.Now()
	result := &Result{
		Session: contribution.Session,
		ChainID: req.ChainID,
		Epoch:   req.Epoch,
		Quorum:  quorum,
	}
	if req.Point != nil {
		g, _ := field.AsGroup(c.field)
		acc := g.Identity()
		for _, p := range partials {
			acc = acc.Add(p.Point)
		}
		result.Point = acc
	} else {
		values := make([]field.Element, len(partials))
		for k, p := range partials {
			values[k] = p.Value
		}
		result.Value = field.Sum(values)
	}
	timings.Combine = time.Since(start)
	metrics.RecordPhase(metrics.PhaseCombine, timings.Combine)

	result.Timings = timings
	c.log.Debug("Alpha protocol completed",
		slog.String("session", result.Session),
		slog.String("chain", req.ChainID),
		slog.Uint64("epoch", req.Epoch),
		slog.Any("quorum", quorum),
		slog.Duration("quorum_duration", timings.Quorum),
		slog.Duration("partials_duration", timings.Partials),
		slog.Duration("combine_duration", timings.Combine))

	return result, nil, nil
}

// selectQuorum probes every candidate concurrently and keeps the first t
// that report a share for the chain's epoch. Outstanding probes are
// cancelled as soon as the quorum is complete.
func (c *Coordinator) selectQuorum(ctx context.Context, req Request, candidates []interfaces.Contributor) (map[int]interfaces.Contributor, error) {
	if len(candidates) < c.threshold {
		return nil, fmt.Errorf("%w: %d contributors, need %d", interfaces.ErrInsufficientShares, len(candidates), c.threshold)
	}

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	answers := make(chan readiness, len(candidates))
	for _, contributor := range candidates {
		go func(contributor interfaces.Contributor) {
			index, err := contributor.Ready(probeCtx, req.ChainID, req.Epoch)
			answers <- readiness{contributor: contributor, index: index, err: err}
		}(contributor)
	}

	members := make(map[int]interfaces.Contributor, c.threshold)
	for received := 0; received < len(candidates) && len(members) < c.threshold; received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case answer := <-answers:
			if answer.err != nil {
				c.log.Debug("Contributor not ready",
					slog.String("contributor", answer.contributor.ID()),
					slog.Uint64("epoch", req.Epoch),
					"err", answer.err)
				continue
			}
			if _, dup := members[answer.index]; dup || answer.index < 1 {
				c.log.Warn("Contributor reported a duplicate or invalid share index",
					slog.String("contributor", answer.contributor.ID()),
					slog.Int("index", answer.index))
				continue
			}
			members[answer.index] = answer.contributor
		}
	}

	if len(members) < c.threshold {
		return nil, fmt.Errorf("%w: %d of %d contributors ready for epoch %d, need %d",
			interfaces.ErrInsufficientShares, len(members), len(candidates), req.Epoch, c.threshold)
	}
	return members, nil
}

// collectPartials asks every quorum member for its contribution, each in its
// own goroutine, and joins over exactly len(members) results.
func (c *Coordinator) collectPartials(ctx context.Context, req interfaces.ContributionRequest, members map[int]interfaces.Contributor) ([]interfaces.Partial, []interfaces.Contributor, error) {
	partialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan outcome, len(members))
	for index, contributor := range members {
		go func(index int, contributor interfaces.Contributor) {
			p, err := contributor.Contribute(partialCtx, req)
			outcomes <- outcome{contributor: contributor, index: index, partial: p, err: err}
		}(index, contributor)
	}

	partials := make([]interfaces.Partial, 0, len(members))
	var failed []interfaces.Contributor
	var errs []error
	for range members {
		var o outcome
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case o = <-outcomes:
		}

		if o.err != nil {
			if errors.Is(o.err, interfaces.ErrInconsistentShares) {
				return nil, nil, fmt.Errorf("contributor %s: %w", o.contributor.ID(), o.err)
			}
			failed = append(failed, o.contributor)
			errs = append(errs, fmt.Errorf("contributor %s: %w", o.contributor.ID(), o.err))
			continue
		}
		if err := c.checkPartial(req, o.index, o.partial); err != nil {
			return nil, nil, fmt.Errorf("contributor %s: %w", o.contributor.ID(), err)
		}
		partials = append(partials, o.partial)
	}

	if len(failed) > 0 {
		return nil, failed, fmt.Errorf("%w: %d quorum members failed: %w", interfaces.ErrInsufficientShares, len(failed), errors.Join(errs...))
	}
	return partials, nil, nil
}

func (c *Coordinator) checkPartial(req interfaces.ContributionRequest, index int, p interfaces.Partial) error {
	switch {
	case p.Session != req.Session:
		return fmt.Errorf("%w: partial for session %q", interfaces.ErrInconsistentShares, p.Session)
	case p.ChainID != req.ChainID:
		return fmt.Errorf("%w: partial for chain %q", interfaces.ErrInconsistentShares, p.ChainID)
	case p.Epoch != req.Epoch:
		return fmt.Errorf("%w: partial for epoch %d, expected %d", interfaces.ErrInconsistentShares, p.Epoch, req.Epoch)
	case p.Index != index:
		return fmt.Errorf("%w: partial from index %d, expected %d", interfaces.ErrInconsistentShares, p.Index, index)
	case req.Point != nil && p.Point == nil:
		return fmt.Errorf("%w: missing point in exponent mode", interfaces.ErrInconsistentShares)
	case req.Point == nil && p.Value == nil:
		return fmt.Errorf("%w: missing value in scalar mode", interfaces.ErrInconsistentShares)
	case req.Point == nil && p.Value.Field().Modulus().Cmp(c.field.Modulus()) != 0:
		return fmt.Errorf("%w: partial value from field %s", interfaces.ErrInconsistentShares, p.Value.Field().Name())
	}
	return nil
}
