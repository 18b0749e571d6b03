package rnchain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/threshold-curator-kms/alpha"
	"github.com/ruteri/threshold-curator-kms/codec"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/metrics"
	"github.com/ruteri/threshold-curator-kms/sharing"
)

var (
	// ErrNotLinked is returned by History on a chain that does not seal
	// predecessors.
	ErrNotLinked = errors.New("chain does not use linked rotation")

	// ErrReasonRequired is returned for an audited access without a reason.
	ErrReasonRequired = errors.New("audited access requires a reason")
)

const keyInfoPrefix = "threshold-curator-kms"

// Config holds the parameters of a chain. The number of curators is always
// 2*Threshold+1.
type Config struct {
	Field        field.Field
	Threshold    int
	RotationMode interfaces.RotationMode

	// Owner is the data subject's key. When set, links are signed with it
	// and recoveries require a consent signed by it.
	Owner ed25519.PrivateKey

	SubjectID string
	DatasetID string

	// Cipher seals predecessor secrets in linked rotation.
	Cipher codec.Cipher

	// Archive, when set, receives every link record and audit entry.
	Archive interfaces.StorageBackend

	// Rand defaults to crypto/rand.
	Rand io.Reader
	Log  *slog.Logger
}

// N returns the number of curators for the configured threshold.
func (c Config) N() int { return 2*c.Threshold + 1 }

// Chain is an append-only, hash-linked sequence of share sets. Each Create
// deals a new secret to the curators; the secret itself is never stored and
// only comes back through a threshold recovery.
type Chain struct {
	mu  sync.RWMutex
	id  string
	cfg Config
	log *slog.Logger

	custodians   []interfaces.Custodian
	contributors []interfaces.Contributor
	coordinator  *alpha.Coordinator

	links    []*Link
	audit    []AuditEntry
	nonces   map[string]struct{}
	archived map[uint64]interfaces.ContentID

	data         []*DataRecord
	dataArchived map[string]interfaces.ContentID
}

// New creates an empty chain dealing to the given curators, which must
// number exactly 2t+1. Share i+1 always goes to custodians[i].
func New(cfg Config, custodians []interfaces.Custodian) (*Chain, error) {
	if cfg.Field == nil {
		cfg.Field = field.Ed25519()
	}
	params, err := sharing.NewParams(cfg.Field, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	if len(custodians) != params.N {
		return nil, fmt.Errorf("%w: %d curators for threshold %d, need %d", interfaces.ErrInvalidThreshold, len(custodians), cfg.Threshold, params.N)
	}
	if cfg.RotationMode.String() == "unknown" {
		return nil, fmt.Errorf("unknown rotation mode %d", cfg.RotationMode)
	}
	if cfg.Cipher, err = codec.ParseCipher(string(cfg.Cipher)); err != nil {
		return nil, err
	}
	if cfg.Owner != nil && len(cfg.Owner) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid owner key size %d", len(cfg.Owner))
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	id := uuid.NewString()
	log := cfg.Log.With(slog.String("chain", id))
	coordinator, err := alpha.NewCoordinator(cfg.Field, cfg.Threshold, log)
	if err != nil {
		return nil, err
	}

	contributors := make([]interfaces.Contributor, len(custodians))
	for i, c := range custodians {
		contributors[i] = c
	}

	return &Chain{
		id:           id,
		cfg:          cfg,
		log:          log,
		custodians:   custodians,
		contributors: contributors,
		coordinator:  coordinator,
		nonces:       make(map[string]struct{}),
		archived:     make(map[uint64]interfaces.ContentID),
		dataArchived: make(map[string]interfaces.ContentID),
	}, nil
}

// WithContributors makes recoveries reach the curators through a different
// transport than deals, for example HTTP clients of the same curators.
func (c *Chain) WithContributors(contributors []interfaces.Contributor) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contributors = contributors
	return c
}

func (c *Chain) ID() string { return c.id }

func (c *Chain) Config() Config { return c.cfg }

// Len returns the number of links.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.links)
}

// Link returns a copy of the link at epoch.
func (c *Chain) Link(epoch uint64) (*Link, error) {
	link, err := c.link(epoch)
	if err != nil {
		return nil, err
	}
	return link.clone(), nil
}

// Archived returns the content ID of the archived record of a link.
func (c *Chain) Archived(epoch uint64) (interfaces.ContentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.archived[epoch]
	return id, ok
}

// AuditLog returns a copy of all audit entries, oldest first.
func (c *Chain) AuditLog() []AuditEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]AuditEntry(nil), c.audit...)
}

func (c *Chain) link(epoch uint64) (*Link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if epoch >= uint64(len(c.links)) {
		return nil, fmt.Errorf("%w: epoch %d, chain length %d", interfaces.ErrEpochNotFound, epoch, len(c.links))
	}
	return c.links[epoch], nil
}

// Create appends a link: it obtains the next secret according to the
// rotation mode, splits it, deals one share and the pairwise mask seeds to
// every curator and records the public link. Reshare and linked rotation
// recover the previous secret first, so they need t available curators.
func (c *Chain) Create(ctx context.Context) (_ *Link, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpCreate, err, time.Since(start)) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	epoch := uint64(len(c.links))
	link := &Link{
		ChainID:   c.id,
		Epoch:     epoch,
		ID:        uuid.NewString(),
		SubjectID: c.cfg.SubjectID,
		DatasetID: c.cfg.DatasetID,
		Params: LinkParams{
			Field:     c.cfg.Field.Name(),
			Threshold: c.cfg.Threshold,
			N:         c.cfg.N(),
			Rotation:  c.cfg.RotationMode.String(),
		},
	}
	var prev *Link
	if epoch > 0 {
		prev = c.links[epoch-1]
		link.PrevHash = prev.Hash
	}

	secret, err := c.nextSecret(ctx, link, prev)
	if err != nil {
		return nil, err
	}

	set, err := sharing.Split(c.cfg.Field, secret, c.cfg.Threshold, c.cfg.N(), c.cfg.Rand)
	if err != nil {
		return nil, err
	}
	defer set.Wipe()
	set.SetEpoch(epoch)

	if err := c.deal(ctx, set); err != nil {
		return nil, err
	}

	link.Commitments = make([][]byte, len(set.Commitments))
	for i, p := range set.Commitments {
		link.Commitments[i] = p.Bytes()
	}
	link.CreatedAt = time.Now().UTC()
	link.Hash = link.ComputeHash()
	if c.cfg.Owner != nil {
		link.Signature = ed25519.Sign(c.cfg.Owner, link.Hash[:])
	}

	if c.cfg.Archive != nil {
		data, err := MarshalLink(link)
		if err != nil {
			return nil, err
		}
		id, err := c.cfg.Archive.Store(ctx, data, interfaces.LinkRecordType)
		if err != nil {
			return nil, fmt.Errorf("failed to archive link %d: %w", epoch, err)
		}
		c.archived[epoch] = id
	}

	c.links = append(c.links, link)
	metrics.SetChainLength(len(c.links))

	c.log.Info("Created chain link",
		slog.Uint64("epoch", epoch),
		slog.String("link", link.ID),
		slog.String("rotation", link.Params.Rotation),
		slog.Int("threshold", link.Params.Threshold),
		slog.Int("n", link.Params.N))

	return link.clone(), nil
}

// nextSecret picks the secret for link. In linked rotation it also seals
// the previous secret into link.Sealed.
func (c *Chain) nextSecret(ctx context.Context, link, prev *Link) (field.Element, error) {
	if prev == nil || c.cfg.RotationMode == interfaces.RotationFresh {
		return c.cfg.Field.Random(c.cfg.Rand)
	}

	// c.mu is held by Create
	result, err := c.recoverLink(ctx, prev, c.contributors)
	if err != nil {
		return nil, fmt.Errorf("failed to recover epoch %d for rotation: %w", prev.Epoch, err)
	}
	if c.cfg.RotationMode == interfaces.RotationReshare {
		return result.Value, nil
	}

	secret, err := c.cfg.Field.Random(c.cfg.Rand)
	if err != nil {
		return nil, err
	}
	sealer, err := c.sealCodec(secret, link)
	if err != nil {
		return nil, err
	}
	link.Sealed, err = sealer.Seal(result.Value.Bytes(), sealAAD(link))
	if err != nil {
		return nil, fmt.Errorf("failed to seal epoch %d: %w", prev.Epoch, err)
	}
	return secret, nil
}

func (c *Chain) deal(ctx context.Context, set *sharing.ShareSet) error {
	seeds, err := alpha.DealPairSeeds(set.N, c.cfg.Rand)
	if err != nil {
		return err
	}
	defer func() {
		for _, row := range seeds {
			for _, seed := range row {
				wipeBytes(seed)
			}
		}
	}()

	for i, custodian := range c.custodians {
		share := set.Shares[i]
		deal := interfaces.Deal{
			ChainID:     c.id,
			Epoch:       share.Epoch,
			Share:       share,
			Threshold:   set.T,
			Commitments: set.Commitments,
			PairSeeds:   seeds[share.Index],
		}
		if err := custodian.Accept(ctx, deal); err != nil {
			return fmt.Errorf("failed to deal share %d to %s: %w", share.Index, custodian.ID(), err)
		}
	}
	return nil
}

// Recover returns the secret of epoch through a threshold recovery. A chain
// with an owner fails with ErrConsentRequired; use RecoverWithConsent.
func (c *Chain) Recover(ctx context.Context, epoch uint64) (field.Element, error) {
	result, err := c.RecoverDetailed(ctx, epoch, nil)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// RecoverWithConsent is Recover authorised by the data subject.
func (c *Chain) RecoverWithConsent(ctx context.Context, epoch uint64, consent Consent) (field.Element, error) {
	result, err := c.RecoverDetailed(ctx, epoch, &consent)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// RecoverDetailed recovers epoch and returns the full protocol result,
// including quorum and phase timings. consent may be nil for chains
// without an owner.
func (c *Chain) RecoverDetailed(ctx context.Context, epoch uint64, consent *Consent) (_ *alpha.Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpRecover, err, time.Since(start)) }()

	link, err := c.link(epoch)
	if err != nil {
		return nil, err
	}
	nonce, err := c.checkConsent(epoch, consent)
	if err != nil {
		return nil, err
	}
	result, err := c.recoverLink(ctx, link, c.currentContributors())
	if err != nil {
		return nil, err
	}
	if err := c.consumeNonce(nonce); err != nil {
		return nil, err
	}
	return result, nil
}

// DataKey recovers epoch and derives the symmetric key protecting the
// epoch's data.
func (c *Chain) DataKey(ctx context.Context, epoch uint64, consent *Consent) ([]byte, error) {
	result, err := c.RecoverDetailed(ctx, epoch, consent)
	if err != nil {
		return nil, err
	}
	return codec.DeriveKey(result.Value, c.DataKeyInfo(epoch))
}

// DataKeyInfo is the HKDF info string of an epoch's data key.
func (c *Chain) DataKeyInfo(epoch uint64) string {
	return fmt.Sprintf("%s/data-key/%s/%s/%d", keyInfoPrefix, c.cfg.DatasetID, c.id, epoch)
}

// DeriveAlpha computes secret*point for epoch without forming the secret.
func (c *Chain) DeriveAlpha(ctx context.Context, epoch uint64, point field.Point, consent *Consent) (_ field.Point, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpDeriveAlpha, err, time.Since(start)) }()

	if point == nil {
		return nil, errors.New("nil point")
	}
	link, err := c.link(epoch)
	if err != nil {
		return nil, err
	}
	nonce, err := c.checkConsent(epoch, consent)
	if err != nil {
		return nil, err
	}

	result, err := c.coordinator.Run(ctx, alpha.Request{ChainID: c.id, Epoch: link.Epoch, Point: point}, c.currentContributors())
	if err != nil {
		return nil, err
	}
	if err := c.consumeNonce(nonce); err != nil {
		return nil, err
	}
	return result.Point, nil
}

// BreakGlass recovers epoch without the data subject's consent. The access
// is recorded in the audit log, and archived when an archive is configured,
// before the recovery starts. An empty reason is rejected.
func (c *Chain) BreakGlass(ctx context.Context, epoch uint64, requester, reason string) (_ field.Element, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpBreakGlass, err, time.Since(start)) }()

	link, err := c.audited(ctx, ActionBreakGlass, epoch, requester, reason)
	if err != nil {
		return nil, err
	}
	result, err := c.recoverLink(ctx, link, c.currentContributors())
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// History recovers the head of a linked chain and walks back through the
// sealed predecessors. The result is indexed by epoch. consent, when the
// chain has an owner, must be for the head epoch.
func (c *Chain) History(ctx context.Context, consent *Consent) (_ []field.Element, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainOperation(metrics.OpHistory, err, time.Since(start)) }()

	if c.cfg.RotationMode != interfaces.RotationLinked {
		return nil, ErrNotLinked
	}

	c.mu.RLock()
	links := append([]*Link(nil), c.links...)
	c.mu.RUnlock()
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: empty chain", interfaces.ErrEpochNotFound)
	}

	head := links[len(links)-1]
	nonce, err := c.checkConsent(head.Epoch, consent)
	if err != nil {
		return nil, err
	}
	result, err := c.recoverLink(ctx, head, c.currentContributors())
	if err != nil {
		return nil, err
	}
	if err := c.consumeNonce(nonce); err != nil {
		return nil, err
	}

	secrets := make([]field.Element, len(links))
	secrets[head.Epoch] = result.Value
	for e := head.Epoch; e > 0; e-- {
		prev, err := c.unseal(links[e], secrets[e])
		if err != nil {
			return nil, err
		}
		if err := c.checkCommitment(links[e-1], prev); err != nil {
			return nil, fmt.Errorf("%w: unsealed secret of epoch %d: %w", interfaces.ErrChainBroken, e-1, err)
		}
		secrets[e-1] = prev
	}
	return secrets, nil
}

// Verify re-hashes every link, data record and audit entry and checks their
// linkage and the owner signatures.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var owner ed25519.PublicKey
	if c.cfg.Owner != nil {
		owner = c.cfg.Owner.Public().(ed25519.PublicKey)
	}

	var prev Hash
	for i, link := range c.links {
		if link.Epoch != uint64(i) || link.ChainID != c.id {
			return fmt.Errorf("%w: link %d claims epoch %d of chain %s", interfaces.ErrChainBroken, i, link.Epoch, link.ChainID)
		}
		if link.PrevHash != prev {
			return fmt.Errorf("%w: link %d does not extend its predecessor", interfaces.ErrChainBroken, i)
		}
		if err := link.Verify(owner); err != nil {
			return err
		}
		prev = link.Hash
	}

	prev = Hash{}
	for i, entry := range c.audit {
		if entry.PrevHash != prev || entry.ComputeHash() != entry.Hash {
			return fmt.Errorf("%w: audit entry %d", interfaces.ErrChainBroken, i)
		}
		prev = entry.Hash
	}
	return c.verifyData(owner)
}

func (c *Chain) currentContributors() []interfaces.Contributor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contributors
}

// recoverLink runs the alpha protocol for link and checks the result
// against the link's commitment to the secret.
func (c *Chain) recoverLink(ctx context.Context, link *Link, contributors []interfaces.Contributor) (*alpha.Result, error) {
	result, err := c.coordinator.Run(ctx, alpha.Request{ChainID: c.id, Epoch: link.Epoch}, contributors)
	if err != nil {
		return nil, err
	}
	if err := c.checkCommitment(link, result.Value); err != nil {
		return nil, err
	}

	c.log.Debug("Recovered epoch",
		slog.Uint64("epoch", link.Epoch),
		slog.Any("quorum", result.Quorum),
		slog.Int("attempts", result.Attempts),
		slog.Duration("duration", result.Timings.Total()))
	return result, nil
}

// checkCommitment compares secret*B with the commitment to the constant
// term. Links over fields without a group carry no commitments.
func (c *Chain) checkCommitment(link *Link, secret field.Element) error {
	if len(link.Commitments) == 0 {
		return nil
	}
	g, ok := field.AsGroup(c.cfg.Field)
	if !ok {
		return fmt.Errorf("%w: field %s", alpha.ErrNotAGroup, c.cfg.Field.Name())
	}
	c0, err := g.PointFromBytes(link.Commitments[0])
	if err != nil {
		return fmt.Errorf("%w: commitment of epoch %d: %w", interfaces.ErrChainBroken, link.Epoch, err)
	}
	if !g.ScalarBaseMult(secret).Equal(c0) {
		return fmt.Errorf("%w: recovered value does not match the commitment of epoch %d", interfaces.ErrInconsistentShares, link.Epoch)
	}
	return nil
}

// checkConsent validates consent for epoch and returns its nonce. The nonce
// is only spent by consumeNonce once the access succeeded, so a consent
// stays usable across a failed recovery.
func (c *Chain) checkConsent(epoch uint64, consent *Consent) (string, error) {
	if c.cfg.Owner == nil {
		return "", nil
	}
	if consent == nil {
		return "", fmt.Errorf("%w: epoch %d", interfaces.ErrConsentRequired, epoch)
	}
	if consent.ChainID != c.id || consent.Epoch != epoch {
		return "", fmt.Errorf("%w: consent for %s/%d used on %s/%d", interfaces.ErrConsentInvalid, consent.ChainID, consent.Epoch, c.id, epoch)
	}
	if !consent.verify(c.cfg.Owner.Public().(ed25519.PublicKey)) {
		return "", fmt.Errorf("%w: bad signature", interfaces.ErrConsentInvalid)
	}

	nonce := hex.EncodeToString(consent.Nonce)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, used := c.nonces[nonce]; used {
		return "", fmt.Errorf("%w: replayed nonce", interfaces.ErrConsentInvalid)
	}
	return nonce, nil
}

// consumeNonce marks a consent nonce as spent. Two concurrent accesses with
// the same consent both pass checkConsent; only the first to finish wins.
func (c *Chain) consumeNonce(nonce string) error {
	if nonce == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, used := c.nonces[nonce]; used {
		return fmt.Errorf("%w: replayed nonce", interfaces.ErrConsentInvalid)
	}
	c.nonces[nonce] = struct{}{}
	return nil
}

// audited validates an audited access to epoch and appends its audit entry.
func (c *Chain) audited(ctx context.Context, action string, epoch uint64, requester, reason string) (*Link, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	link, err := c.link(epoch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := AuditEntry{
		ID:        uuid.NewString(),
		ChainID:   c.id,
		Epoch:     epoch,
		Action:    action,
		Requester: requester,
		Reason:    reason,
		Time:      time.Now().UTC(),
	}
	if n := len(c.audit); n > 0 {
		entry.PrevHash = c.audit[n-1].Hash
	}
	entry.Hash = entry.ComputeHash()

	if c.cfg.Archive != nil {
		data, err := marshalAudit(entry)
		if err != nil {
			return nil, err
		}
		if _, err := c.cfg.Archive.Store(ctx, data, interfaces.AuditType); err != nil {
			return nil, fmt.Errorf("failed to archive audit entry, refusing access: %w", err)
		}
	}
	c.audit = append(c.audit, entry)

	c.log.Warn("Audited access without data subject consent",
		slog.String("action", action),
		slog.Uint64("epoch", epoch),
		slog.String("requester", requester),
		slog.String("reason", reason),
		slog.String("entry", entry.ID))
	return link, nil
}

func (c *Chain) sealCodec(secret field.Element, link *Link) (*codec.Codec, error) {
	key, err := codec.DeriveKey(secret, fmt.Sprintf("%s/seal/%s/%d", keyInfoPrefix, link.ChainID, link.Epoch))
	if err != nil {
		return nil, err
	}
	defer wipeBytes(key)
	return codec.New(c.cfg.Cipher, key)
}

func (c *Chain) unseal(link *Link, secret field.Element) (field.Element, error) {
	if len(link.Sealed) == 0 {
		return nil, fmt.Errorf("%w: link %d seals no predecessor", interfaces.ErrChainBroken, link.Epoch)
	}
	opener, err := c.sealCodec(secret, link)
	if err != nil {
		return nil, err
	}
	plain, err := opener.Open(link.Sealed, sealAAD(link))
	if err != nil {
		return nil, fmt.Errorf("%w: sealed predecessor of epoch %d: %w", interfaces.ErrChainBroken, link.Epoch, err)
	}
	defer wipeBytes(plain)
	return c.cfg.Field.FromBytes(plain)
}

func sealAAD(link *Link) []byte {
	return []byte(fmt.Sprintf("%s/%d/%s", link.ChainID, link.Epoch, link.ID))
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
