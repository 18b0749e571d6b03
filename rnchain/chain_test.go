package rnchain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ruteri/threshold-curator-kms/curator"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChain(t *testing.T, cfg Config) (*Chain, []*curator.Curator) {
	if cfg.Field == nil {
		cfg.Field = field.Ed25519()
	}
	cfg.Log = discardLogger()
	committee := curator.NewCommittee(cfg.N(), cfg.Field, cfg.Log)
	custodians := make([]interfaces.Custodian, len(committee))
	for i, c := range committee {
		custodians[i] = c
	}
	chain, err := New(cfg, custodians)
	require.NoError(t, err)
	return chain, committee
}

func committed(t *testing.T, chain *Chain, epoch uint64) field.Point {
	link, err := chain.Link(epoch)
	require.NoError(t, err)
	require.NotEmpty(t, link.Commitments)
	p, err := field.Ed25519().PointFromBytes(link.Commitments[0])
	require.NoError(t, err)
	return p
}

func TestCreateAndRecover(t *testing.T) {
	ctx := context.Background()
	chain, committee := newChain(t, Config{Threshold: 2})
	g := field.Ed25519()

	for i := 0; i < 3; i++ {
		link, err := chain.Create(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), link.Epoch)
		assert.Equal(t, 5, link.Params.N)
		assert.Len(t, link.Commitments, 2)
	}
	require.Equal(t, 3, chain.Len())
	for _, c := range committee {
		assert.Equal(t, []uint64{0, 1, 2}, c.Epochs(chain.ID()), "every curator holds one share per epoch")
	}

	var secrets []field.Element
	for epoch := uint64(0); epoch < 3; epoch++ {
		secret, err := chain.Recover(ctx, epoch)
		require.NoError(t, err)
		assert.True(t, g.ScalarBaseMult(secret).Equal(committed(t, chain, epoch)), "epoch %d secret matches its commitment", epoch)
		secrets = append(secrets, secret)
	}
	assert.False(t, secrets[0].Equal(secrets[1]), "fresh rotation draws independent secrets")

	_, err := chain.Recover(ctx, 3)
	assert.ErrorIs(t, err, interfaces.ErrEpochNotFound)

	require.NoError(t, chain.Verify())
}

func TestRecoverWithUnavailableCurators(t *testing.T) {
	ctx := context.Background()
	chain, committee := newChain(t, Config{Threshold: 2})
	_, err := chain.Create(ctx)
	require.NoError(t, err)

	committee[0].SetAvailable(false)
	committee[3].SetAvailable(false)
	committee[4].SetAvailable(false)
	result, err := chain.RecoverDetailed(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, result.Quorum)

	committee[1].SetAvailable(false)
	_, err = chain.Recover(ctx, 0)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestReshareKeepsSecret(t *testing.T) {
	ctx := context.Background()
	chain, _ := newChain(t, Config{Threshold: 1, RotationMode: interfaces.RotationReshare})

	for i := 0; i < 3; i++ {
		_, err := chain.Create(ctx)
		require.NoError(t, err)
	}

	first, err := chain.Recover(ctx, 0)
	require.NoError(t, err)
	last, err := chain.Recover(ctx, 2)
	require.NoError(t, err)
	assert.True(t, first.Equal(last), "resharing refreshes shares, not the secret")

	l0, err := chain.Link(0)
	require.NoError(t, err)
	l2, err := chain.Link(2)
	require.NoError(t, err)
	assert.Equal(t, l0.Commitments[0], l2.Commitments[0])
	assert.Empty(t, l2.Sealed)
}

func TestReshareOverPrimeField(t *testing.T) {
	ctx := context.Background()
	chain, _ := newChain(t, Config{Field: field.Mersenne127(), Threshold: 2, RotationMode: interfaces.RotationReshare})

	_, err := chain.Create(ctx)
	require.NoError(t, err)
	link, err := chain.Create(ctx)
	require.NoError(t, err)
	assert.Empty(t, link.Commitments, "prime fields carry no commitments")

	a, err := chain.Recover(ctx, 0)
	require.NoError(t, err)
	b, err := chain.Recover(ctx, 1)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestLinkedHistory(t *testing.T) {
	ctx := context.Background()
	chain, _ := newChain(t, Config{Threshold: 2, RotationMode: interfaces.RotationLinked, Cipher: "chacha20-poly1305"})

	for i := 0; i < 4; i++ {
		_, err := chain.Create(ctx)
		require.NoError(t, err)
	}

	history, err := chain.History(ctx, nil)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for epoch, secret := range history {
		direct, err := chain.Recover(ctx, uint64(epoch))
		require.NoError(t, err)
		assert.True(t, direct.Equal(secret), "history of epoch %d", epoch)
	}

	// a corrupted seal breaks the walk
	chain.links[2].Sealed[len(chain.links[2].Sealed)-1] ^= 1
	_, err = chain.History(ctx, nil)
	assert.ErrorIs(t, err, interfaces.ErrChainBroken)
	assert.ErrorIs(t, chain.Verify(), interfaces.ErrChainBroken)

	fresh, _ := newChain(t, Config{Threshold: 1})
	_, err = fresh.History(ctx, nil)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestConsent(t *testing.T) {
	ctx := context.Background()
	_, owner, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, stranger, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	chain, _ := newChain(t, Config{Threshold: 1, Owner: owner, SubjectID: "patient-7"})
	for i := 0; i < 2; i++ {
		_, err := chain.Create(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, chain.Verify())

	_, err = chain.Recover(ctx, 0)
	assert.ErrorIs(t, err, interfaces.ErrConsentRequired)

	consent, err := NewConsent(owner, chain.ID(), 0)
	require.NoError(t, err)
	_, err = chain.RecoverWithConsent(ctx, 0, consent)
	require.NoError(t, err)

	_, err = chain.RecoverWithConsent(ctx, 0, consent)
	assert.ErrorIs(t, err, interfaces.ErrConsentInvalid, "nonce replay")

	other, err := NewConsent(owner, chain.ID(), 0)
	require.NoError(t, err)
	_, err = chain.RecoverWithConsent(ctx, 1, other)
	assert.ErrorIs(t, err, interfaces.ErrConsentInvalid, "consent is bound to its epoch")

	forged, err := NewConsent(stranger, chain.ID(), 1)
	require.NoError(t, err)
	_, err = chain.RecoverWithConsent(ctx, 1, forged)
	assert.ErrorIs(t, err, interfaces.ErrConsentInvalid)

	_, err = chain.DeriveAlpha(ctx, 1, field.Ed25519().BasePoint(), nil)
	assert.ErrorIs(t, err, interfaces.ErrConsentRequired)
}

func TestConsentSurvivesFailedRecovery(t *testing.T) {
	ctx := context.Background()
	_, owner, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	chain, committee := newChain(t, Config{Threshold: 1, Owner: owner})
	_, err = chain.Create(ctx)
	require.NoError(t, err)

	consent, err := NewConsent(owner, chain.ID(), 0)
	require.NoError(t, err)

	for _, c := range committee {
		c.SetAvailable(false)
	}
	_, err = chain.RecoverWithConsent(ctx, 0, consent)
	require.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	for _, c := range committee {
		c.SetAvailable(true)
	}
	_, err = chain.RecoverWithConsent(ctx, 0, consent)
	require.NoError(t, err, "a failed recovery must not spend the consent")

	_, err = chain.RecoverWithConsent(ctx, 0, consent)
	assert.ErrorIs(t, err, interfaces.ErrConsentInvalid, "nonce replay")
}

func TestChainsShareCommittee(t *testing.T) {
	ctx := context.Background()
	log := discardLogger()
	committee := curator.NewCommittee(3, field.Ed25519(), log)
	custodians := make([]interfaces.Custodian, len(committee))
	for i, c := range committee {
		custodians[i] = c
	}

	chainA, err := New(Config{Threshold: 1, Log: log}, custodians)
	require.NoError(t, err)
	chainB, err := New(Config{Threshold: 1, Log: log}, custodians)
	require.NoError(t, err)

	_, err = chainA.Create(ctx)
	require.NoError(t, err)
	before, err := chainA.Recover(ctx, 0)
	require.NoError(t, err)

	_, err = chainB.Create(ctx)
	require.NoError(t, err)

	after, err := chainA.Recover(ctx, 0)
	require.NoError(t, err, "epoch 0 of another chain must not replace this chain's shares")
	assert.True(t, after.Equal(before))

	secretB, err := chainB.Recover(ctx, 0)
	require.NoError(t, err)
	assert.False(t, secretB.Equal(before))

	for _, c := range committee {
		assert.Equal(t, map[string][]uint64{chainA.ID(): {0}, chainB.ID(): {0}}, c.Chains())
	}
}

func TestBreakGlassIsAudited(t *testing.T) {
	ctx := context.Background()
	_, owner, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	archive, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	chain, _ := newChain(t, Config{Threshold: 1, Owner: owner, Archive: archive})
	_, err = chain.Create(ctx)
	require.NoError(t, err)

	_, err = chain.BreakGlass(ctx, 0, "er-physician", "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)
	_, err = chain.BreakGlass(ctx, 5, "er-physician", "unconscious patient")
	assert.ErrorIs(t, err, interfaces.ErrEpochNotFound)
	assert.Empty(t, chain.AuditLog())

	secret, err := chain.BreakGlass(ctx, 0, "er-physician", "unconscious patient")
	require.NoError(t, err)
	assert.True(t, field.Ed25519().ScalarBaseMult(secret).Equal(committed(t, chain, 0)))

	_, err = chain.BreakGlass(ctx, 0, "er-physician", "follow-up")
	require.NoError(t, err)

	log := chain.AuditLog()
	require.Len(t, log, 2)
	assert.Equal(t, ActionBreakGlass, log[0].Action)
	assert.Equal(t, "unconscious patient", log[0].Reason)
	assert.True(t, log[0].PrevHash.IsZero())
	assert.Equal(t, log[0].Hash, log[1].PrevHash, "audit entries are hash-linked")
	require.NoError(t, chain.Verify())

	data, err := marshalAudit(log[1])
	require.NoError(t, err)
	archived, err := LoadAuditEntry(ctx, archive, interfaces.ComputeID(data))
	require.NoError(t, err)
	assert.Equal(t, log[1].ID, archived.ID)

	chain.audit[0].Reason = "routine"
	assert.ErrorIs(t, chain.Verify(), interfaces.ErrChainBroken)
}

func TestArchivedLinks(t *testing.T) {
	ctx := context.Background()
	archive, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	chain, _ := newChain(t, Config{Threshold: 1, Archive: archive, DatasetID: "ct-2024-001"})
	for i := 0; i < 2; i++ {
		_, err := chain.Create(ctx)
		require.NoError(t, err)
	}

	for epoch := uint64(0); epoch < 2; epoch++ {
		id, ok := chain.Archived(epoch)
		require.True(t, ok)

		loaded, err := LoadLink(ctx, archive, id)
		require.NoError(t, err)
		want, err := chain.Link(epoch)
		require.NoError(t, err)
		if diff := cmp.Diff(want, loaded); diff != "" {
			t.Errorf("archived link %d differs (-want +got):\n%s", epoch, diff)
		}
	}

	l1, err := chain.Link(1)
	require.NoError(t, err)
	l0, err := chain.Link(0)
	require.NoError(t, err)
	assert.Equal(t, l0.Hash, l1.PrevHash)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	_, owner, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name   string
		tamper func(c *Chain)
	}{
		{"params", func(c *Chain) { c.links[1].Params.Threshold = 3 }},
		{"commitment", func(c *Chain) { c.links[0].Commitments[0][0] ^= 1 }},
		{"signature", func(c *Chain) { c.links[2].Signature[0] ^= 1 }},
		{"reordered", func(c *Chain) { c.links[0], c.links[1] = c.links[1], c.links[0] }},
		{"relinked", func(c *Chain) {
			c.links[2].PrevHash = c.links[0].Hash
			c.links[2].Hash = c.links[2].ComputeHash()
			c.links[2].Signature = ed25519.Sign(owner, c.links[2].Hash[:])
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, _ := newChain(t, Config{Threshold: 1, Owner: owner})
			for i := 0; i < 3; i++ {
				_, err := chain.Create(ctx)
				require.NoError(t, err)
			}
			require.NoError(t, chain.Verify())

			tt.tamper(chain)
			assert.ErrorIs(t, chain.Verify(), interfaces.ErrChainBroken)
		})
	}
}

func TestDeriveAlpha(t *testing.T) {
	ctx := context.Background()
	g := field.Ed25519()
	chain, _ := newChain(t, Config{Threshold: 2})
	_, err := chain.Create(ctx)
	require.NoError(t, err)

	r, err := g.Random(rand.Reader)
	require.NoError(t, err)
	ephemeral := g.ScalarBaseMult(r)

	got, err := chain.DeriveAlpha(ctx, 0, ephemeral, nil)
	require.NoError(t, err)

	secret, err := chain.Recover(ctx, 0)
	require.NoError(t, err)
	assert.True(t, got.Equal(g.ScalarMult(secret, ephemeral)))
	assert.True(t, got.Equal(g.ScalarMult(r, committed(t, chain, 0))), "alpha is a Diffie-Hellman value")
}

func TestEmergencyKit(t *testing.T) {
	ctx := context.Background()
	chain, _ := newChain(t, Config{Threshold: 1, DatasetID: "mri"})
	_, err := chain.Create(ctx)
	require.NoError(t, err)

	_, err = chain.EmergencyKit(ctx, 0, 1, "ops", "disaster recovery")
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)
	assert.Empty(t, chain.AuditLog(), "rejected requests leave no audit entry")

	kit, err := chain.EmergencyKit(ctx, 0, 2, "ops", "disaster recovery")
	require.NoError(t, err)
	assert.Equal(t, 5, kit.N)
	require.Len(t, kit.Parts, 5)

	key, err := kit.Key([][]byte{kit.Parts[4], kit.Parts[1]})
	require.NoError(t, err)

	dataKey, err := chain.DataKey(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, dataKey, key)

	_, err = kit.Key(kit.Parts[:1])
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	log := chain.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, ActionEmergencyKit, log[0].Action)
}

func TestNewValidation(t *testing.T) {
	f := field.Ed25519()
	committee := curator.NewCommittee(4, f, discardLogger())
	custodians := make([]interfaces.Custodian, len(committee))
	for i, c := range committee {
		custodians[i] = c
	}

	_, err := New(Config{Field: f, Threshold: 2}, custodians)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "n must be 2t+1")

	_, err = New(Config{Field: f, Threshold: 0}, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)

	_, err = New(Config{Field: f, Threshold: 1, Cipher: "des"}, custodians[:3])
	assert.Error(t, err)

	_, err = New(Config{Field: f, Threshold: 1, RotationMode: interfaces.RotationMode(9)}, custodians[:3])
	assert.Error(t, err)
}
