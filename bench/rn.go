package bench

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/rnchain"
)

// RnConfig parameterizes the chain benchmark.
type RnConfig struct {
	Threshold int
	ChainSize int
	Rotation  interfaces.RotationMode
	Field     field.Field
	Transport Transport

	// Unavailable curators are taken offline after the chain is built.
	Unavailable int
	Repeat      int

	// Owner signs links and recovers with a consent.
	Owner bool

	// Remote lists the base URLs of running curators to use instead of a
	// fresh committee. It must hold exactly 2t+1 entries.
	Remote []string

	Archive interfaces.StorageBackend
	Log     *slog.Logger
}

func (c RnConfig) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("%w: threshold %d must be at least 1", interfaces.ErrInvalidThreshold, c.Threshold)
	}
	if c.ChainSize < 1 {
		return fmt.Errorf("chain size %d must be at least 1", c.ChainSize)
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat %d must be at least 1", c.Repeat)
	}
	if len(c.Remote) > 0 && len(c.Remote) != 2*c.Threshold+1 {
		return fmt.Errorf("%w: %d remote curators for threshold %d", interfaces.ErrInvalidThreshold, len(c.Remote), c.Threshold)
	}
	// n - t = t + 1 curators may be missing before no quorum is left
	if c.Unavailable < 0 || c.Unavailable > c.Threshold+1 {
		return fmt.Errorf("%w: %d unavailable curators leave no quorum of %d out of %d",
			interfaces.ErrInsufficientShares, c.Unavailable, c.Threshold, 2*c.Threshold+1)
	}
	return nil
}

// RnRun holds the timings of one create/recover pair. Alpha is the part of
// Recover spent computing and combining the partials.
type RnRun struct {
	Create   time.Duration
	Recover  time.Duration
	Alpha    time.Duration
	Attempts int
	Quorum   []int
}

type RnResult struct {
	Threshold int
	N         int
	ChainSize int
	Rotation  interfaces.RotationMode
	Field     string
	Transport Transport
	Runs      []RnRun
}

// Summaries returns the statistics of the create, recover and alpha
// timings over all runs.
func (r *RnResult) Summaries() ([]Summary, error) {
	creates := make([]time.Duration, len(r.Runs))
	recovers := make([]time.Duration, len(r.Runs))
	alphas := make([]time.Duration, len(r.Runs))
	for i, run := range r.Runs {
		creates[i], recovers[i], alphas[i] = run.Create, run.Recover, run.Alpha
	}

	var out []Summary
	for _, s := range []struct {
		name string
		ds   []time.Duration
	}{{"create", creates}, {"recover", recovers}, {"alpha", alphas}} {
		summary, err := Summarize(s.name, s.ds)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// RunRn builds a chain of ChainSize links, then times one more create and
// the recovery of the new head. Every repetition starts from a fresh
// committee.
func RunRn(ctx context.Context, cfg RnConfig) (*RnResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Field == nil {
		cfg.Field = field.Ed25519()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	result := &RnResult{
		Threshold: cfg.Threshold,
		N:         2*cfg.Threshold + 1,
		ChainSize: cfg.ChainSize,
		Rotation:  cfg.Rotation,
		Field:     cfg.Field.Name(),
		Transport: cfg.Transport,
	}
	for i := 0; i < cfg.Repeat; i++ {
		run, err := runRnOnce(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		cfg.Log.Debug("Benchmark run finished",
			slog.Int("run", i+1),
			slog.Duration("create", run.Create),
			slog.Duration("recover", run.Recover),
			slog.Duration("alpha", run.Alpha))
		result.Runs = append(result.Runs, *run)
	}
	return result, nil
}

func runRnOnce(ctx context.Context, cfg RnConfig) (*RnRun, error) {
	committee, err := runCommittee(cfg)
	if err != nil {
		return nil, err
	}
	defer committee.Close()

	var owner ed25519.PrivateKey
	if cfg.Owner {
		if _, owner, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, fmt.Errorf("failed to generate owner key: %w", err)
		}
	}

	chain, err := rnchain.New(rnchain.Config{
		Field:        cfg.Field,
		Threshold:    cfg.Threshold,
		RotationMode: cfg.Rotation,
		Owner:        owner,
		Archive:      cfg.Archive,
		Log:          cfg.Log,
	}, committee.Custodians)
	if err != nil {
		return nil, err
	}

	for i := 0; i < cfg.ChainSize; i++ {
		if _, err := chain.Create(ctx); err != nil {
			return nil, fmt.Errorf("failed to pre-create link %d: %w", i, err)
		}
	}
	if err := committee.SetUnavailable(ctx, cfg.Unavailable); err != nil {
		return nil, err
	}
	if cfg.Unavailable > 0 {
		// remote curators outlive the run
		defer committee.SetUnavailable(context.Background(), 0)
	}

	run := &RnRun{}
	start := time.Now()
	link, err := chain.Create(ctx)
	if err != nil {
		return nil, err
	}
	run.Create = time.Since(start)

	var consent *rnchain.Consent
	if owner != nil {
		c, err := rnchain.NewConsent(owner, chain.ID(), link.Epoch)
		if err != nil {
			return nil, err
		}
		consent = &c
	}

	start = time.Now()
	recovered, err := chain.RecoverDetailed(ctx, link.Epoch, consent)
	if err != nil {
		return nil, err
	}
	run.Recover = time.Since(start)
	// partial computation and combination, without the readiness probe
	run.Alpha = recovered.Timings.Partials + recovered.Timings.Combine
	run.Attempts = recovered.Attempts
	run.Quorum = recovered.Quorum
	return run, nil
}

func runCommittee(cfg RnConfig) (*Committee, error) {
	if len(cfg.Remote) > 0 {
		return NewRemoteCommittee(cfg.Remote, cfg.Field), nil
	}
	return NewCommittee(2*cfg.Threshold+1, cfg.Field, cfg.Transport, cfg.Log)
}
