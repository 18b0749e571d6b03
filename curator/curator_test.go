package curator

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/threshold-curator-kms/alpha"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/sharing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deals(t *testing.T, f field.Field, chainID string, threshold int, epoch uint64, secret field.Element) []interfaces.Deal {
	set, err := sharing.Split(f, secret, threshold, 2*threshold+1, rand.Reader)
	require.NoError(t, err)
	set.SetEpoch(epoch)
	seeds, err := alpha.DealPairSeeds(set.N, rand.Reader)
	require.NoError(t, err)

	out := make([]interfaces.Deal, set.N)
	for i, s := range set.Shares {
		out[i] = interfaces.Deal{
			ChainID:     chainID,
			Epoch:       epoch,
			Share:       s,
			Threshold:   threshold,
			Commitments: set.Commitments,
			PairSeeds:   seeds[s.Index],
		}
	}
	return out
}

func TestCommitteeRecoversSecret(t *testing.T) {
	f := field.Ed25519()
	ctx := context.Background()
	secret := f.FromUint64(42)

	committee := NewCommittee(5, f, discardLogger())
	for i, d := range deals(t, f, "chain", 2, 0, secret) {
		require.NoError(t, committee[i].Accept(ctx, d))
	}

	contributors := make([]interfaces.Contributor, len(committee))
	for i, c := range committee {
		contributors[i] = c
	}
	coord, err := alpha.NewCoordinator(f, 2, discardLogger())
	require.NoError(t, err)

	result, err := coord.Run(ctx, alpha.Request{ChainID: "chain", Epoch: 0}, contributors)
	require.NoError(t, err)
	assert.True(t, result.Value.Equal(secret))

	var served uint64
	for _, c := range committee {
		served += c.Served()
	}
	assert.Equal(t, uint64(2), served, "exactly t curators contribute")
}

func TestAcceptRejectsTamperedShare(t *testing.T) {
	f := field.Ed25519()
	d := deals(t, f, "chain", 2, 1, f.FromUint64(7))[0]
	d.Share.Value = d.Share.Value.Add(f.One())

	c := New("c1", f, discardLogger())
	err := c.Accept(context.Background(), d)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)
	assert.Empty(t, c.Chains(), "rejected deal must not be stored")
}

func TestAcceptValidation(t *testing.T) {
	f := field.Ed25519()
	ctx := context.Background()
	good := deals(t, f, "chain", 1, 3, f.FromUint64(9))[0]

	wrongEpoch := good
	wrongEpoch.Epoch = 4
	assert.ErrorIs(t, New("", f, nil).Accept(ctx, wrongEpoch), interfaces.ErrInconsistentShares)

	noChain := good
	noChain.ChainID = ""
	assert.ErrorIs(t, New("", f, nil).Accept(ctx, noChain), interfaces.ErrInconsistentShares)

	shortCommitments := good
	shortCommitments.Threshold = 2
	assert.ErrorIs(t, New("", f, nil).Accept(ctx, shortCommitments), interfaces.ErrInconsistentShares)

	otherField := good
	otherField.Share.Value = field.Mersenne127().FromUint64(1)
	assert.ErrorIs(t, New("", f, nil).Accept(ctx, otherField), interfaces.ErrInconsistentShares)

	c := New("", f, nil)
	require.NoError(t, c.Accept(ctx, good))
	assert.Equal(t, []uint64{3}, c.Epochs("chain"))
}

func TestAcceptReplacesEpoch(t *testing.T) {
	f := field.Ed25519()
	ctx := context.Background()
	first := deals(t, f, "chain", 1, 0, f.FromUint64(1))[0]
	second := deals(t, f, "chain", 1, 0, f.FromUint64(2))[0]

	c := New("", f, discardLogger())
	require.NoError(t, c.Accept(ctx, first))
	require.NoError(t, c.Accept(ctx, second))
	assert.Equal(t, []uint64{0}, c.Epochs("chain"), "one share per chain and epoch")

	p, err := c.Contribute(ctx, interfaces.ContributionRequest{Session: "s", ChainID: "chain", Epoch: 0, Quorum: []int{1}})
	require.NoError(t, err)
	assert.True(t, p.Value.Equal(second.Share.Value))
	assert.False(t, first.Share.Value.IsZero(), "the dealer's copy is untouched")
}

func TestAcceptWithoutCommitments(t *testing.T) {
	f := field.Mersenne127()
	d := deals(t, f, "chain", 1, 0, f.FromUint64(5))[1]
	require.Empty(t, d.Commitments)

	c := New("m", f, discardLogger())
	require.NoError(t, c.Accept(context.Background(), d))

	idx, err := c.Ready(context.Background(), "chain", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = c.Ready(context.Background(), "other", 0)
	assert.ErrorIs(t, err, interfaces.ErrEpochNotFound)
}

func TestAvailabilityAndForget(t *testing.T) {
	f := field.Ed25519()
	ctx := context.Background()
	d := deals(t, f, "chain", 1, 0, f.FromUint64(1))[0]

	c := New("c", f, discardLogger())
	require.NoError(t, c.Accept(ctx, d))

	c.SetAvailable(false)
	_, err := c.Ready(ctx, "chain", 0)
	assert.ErrorIs(t, err, interfaces.ErrCuratorUnavailable)
	_, err = c.Contribute(ctx, interfaces.ContributionRequest{Session: "s", ChainID: "chain", Epoch: 0, Quorum: []int{1}})
	assert.ErrorIs(t, err, interfaces.ErrCuratorUnavailable)
	assert.False(t, c.Status().Available)

	c.SetAvailable(true)
	p, err := c.Contribute(ctx, interfaces.ContributionRequest{Session: "s", ChainID: "chain", Epoch: 0, Quorum: []int{1}})
	require.NoError(t, err)
	assert.True(t, p.Value.Equal(d.Share.Value))

	_, err = c.Contribute(ctx, interfaces.ContributionRequest{Session: "s", ChainID: "chain", Epoch: 0, Quorum: []int{1, 2}})
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares, "quorum size must match threshold")

	c.Forget("chain", 0)
	_, err = c.Ready(ctx, "chain", 0)
	assert.ErrorIs(t, err, interfaces.ErrEpochNotFound)
	assert.Equal(t, uint64(1), c.Status().Served)
}

func TestChainsAreKeptApart(t *testing.T) {
	// without commitments nothing but the chain id tells the holdings apart
	f := field.Mersenne127()
	ctx := context.Background()
	secretA, secretB := f.FromUint64(11), f.FromUint64(22)

	committee := NewCommittee(5, f, discardLogger())
	contributors := make([]interfaces.Contributor, len(committee))
	for i, c := range committee {
		contributors[i] = c
	}
	coord, err := alpha.NewCoordinator(f, 2, discardLogger())
	require.NoError(t, err)

	for i, d := range deals(t, f, "chain-a", 2, 0, secretA) {
		require.NoError(t, committee[i].Accept(ctx, d))
	}
	for i, d := range deals(t, f, "chain-b", 2, 0, secretB) {
		require.NoError(t, committee[i].Accept(ctx, d))
	}

	a, err := coord.Run(ctx, alpha.Request{ChainID: "chain-a", Epoch: 0}, contributors)
	require.NoError(t, err)
	assert.True(t, a.Value.Equal(secretA), "chain-b's deal must not replace chain-a's share")

	b, err := coord.Run(ctx, alpha.Request{ChainID: "chain-b", Epoch: 0}, contributors)
	require.NoError(t, err)
	assert.True(t, b.Value.Equal(secretB))

	assert.Equal(t, map[string][]uint64{"chain-a": {0}, "chain-b": {0}}, committee[0].Status().Chains)

	for _, c := range committee {
		c.Forget("chain-b", 0)
	}
	_, err = coord.Run(ctx, alpha.Request{ChainID: "chain-b", Epoch: 0}, contributors)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	a, err = coord.Run(ctx, alpha.Request{ChainID: "chain-a", Epoch: 0}, contributors)
	require.NoError(t, err)
	assert.True(t, a.Value.Equal(secretA))
}
