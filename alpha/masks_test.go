package alpha

import (
	"crypto/rand"
	"testing"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasksSumToZero(t *testing.T) {
	for _, f := range []field.Field{field.Ed25519(), field.Mersenne127(), field.P256Order()} {
		seeds, err := DealPairSeeds(7, rand.Reader)
		require.NoError(t, err)

		quorum := []int{1, 3, 4, 7}
		masks := make([]field.Element, 0, len(quorum))
		for _, i := range quorum {
			m, err := Mask(f, i, seeds[i], "session-a", quorum)
			require.NoError(t, err)
			assert.False(t, m.IsZero(), "%s: individual mask should not vanish", f.Name())
			masks = append(masks, m)
		}
		assert.True(t, field.Sum(masks).IsZero(), "%s: masks of a quorum cancel", f.Name())
	}
}

func TestMaskDependsOnSessionAndQuorum(t *testing.T) {
	f := field.Ed25519()
	seeds, err := DealPairSeeds(3, rand.Reader)
	require.NoError(t, err)

	a, err := Mask(f, 1, seeds[1], "s1", []int{1, 2})
	require.NoError(t, err)
	b, err := Mask(f, 1, seeds[1], "s2", []int{1, 2})
	require.NoError(t, err)
	c, err := Mask(f, 1, seeds[1], "s1", []int{1, 3})
	require.NoError(t, err)
	again, err := Mask(f, 1, seeds[1], "s1", []int{1, 2})
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.Equal(again))
}

func TestDealPairSeedsSymmetric(t *testing.T) {
	seeds, err := DealPairSeeds(4, rand.Reader)
	require.NoError(t, err)
	require.Len(t, seeds, 4)
	for i := 1; i <= 4; i++ {
		assert.Len(t, seeds[i], 3)
		assert.NotContains(t, seeds[i], i)
		for j, seed := range seeds[i] {
			assert.Equal(t, seed, seeds[j][i])
			assert.Len(t, seed, SeedSize)
		}
	}
}

func TestMaskMissingSeed(t *testing.T) {
	f := field.Ed25519()
	seeds, err := DealPairSeeds(3, rand.Reader)
	require.NoError(t, err)
	delete(seeds[1], 3)

	_, err = Mask(f, 1, seeds[1], "s", []int{1, 2, 3})
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)
}

func TestContributionValidation(t *testing.T) {
	f := field.Ed25519()
	share := interfaces.Share{Index: 2, Epoch: 1, Value: f.FromUint64(5)}
	seeds, err := DealPairSeeds(3, rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     interfaces.ContributionRequest
		wantErr error
	}{
		{"wrong epoch", interfaces.ContributionRequest{Session: "s", Epoch: 2, Quorum: []int{1, 2}}, interfaces.ErrInconsistentShares},
		{"not a member", interfaces.ContributionRequest{Session: "s", Epoch: 1, Quorum: []int{1, 3}}, interfaces.ErrInconsistentShares},
		{"unsorted quorum", interfaces.ContributionRequest{Session: "s", Epoch: 1, Quorum: []int{2, 1}}, interfaces.ErrInconsistentShares},
		{"duplicate index", interfaces.ContributionRequest{Session: "s", Epoch: 1, Quorum: []int{2, 2}}, interfaces.ErrInconsistentShares},
		{"empty quorum", interfaces.ContributionRequest{Session: "s", Epoch: 1}, interfaces.ErrInsufficientShares},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Contribution(f, share, seeds[2], tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	p, err := Contribution(f, share, seeds[2], interfaces.ContributionRequest{Session: "s", Epoch: 1, Quorum: []int{2}})
	require.NoError(t, err)
	assert.True(t, p.Value.Equal(share.Value), "a singleton quorum has lambda 1 and no mask")

	_, err = Contribution(field.Mersenne127(), interfaces.Share{Index: 2, Epoch: 1, Value: field.Mersenne127().One()}, nil,
		interfaces.ContributionRequest{Session: "s", Epoch: 1, Quorum: []int{2}, Point: field.Ed25519().BasePoint()})
	assert.ErrorIs(t, err, ErrNotAGroup)
}
