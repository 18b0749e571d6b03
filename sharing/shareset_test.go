package sharing

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pick(set *ShareSet, indices ...int) []interfaces.Share {
	out := make([]interfaces.Share, 0, len(indices))
	for _, i := range indices {
		s, ok := set.Share(i)
		if !ok {
			panic("no such share")
		}
		out = append(out, s)
	}
	return out
}

func TestSplitReconstructFortyTwo(t *testing.T) {
	for _, f := range []field.Field{field.Ed25519(), field.Mersenne127(), field.P256Order()} {
		t.Run(f.Name(), func(t *testing.T) {
			secret := f.FromUint64(42)
			set, err := Split(f, secret, 2, 5, rand.Reader)
			require.NoError(t, err)
			require.Len(t, set.Shares, 5)

			got, err := Reconstruct(f, 2, pick(set, 1, 3))
			require.NoError(t, err)
			assert.True(t, got.Equal(secret), "shares {1,3} should reconstruct 42")

			_, err = Reconstruct(f, 2, pick(set, 1))
			assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

			tampered := pick(set, 1, 3, 5)
			tampered[2].Value = tampered[2].Value.Add(f.One())
			_, err = Reconstruct(f, 2, tampered)
			assert.ErrorIs(t, err, interfaces.ErrInconsistentShares, "tampered share 5 should be detected")

			got, err = Reconstruct(f, 2, pick(set, 1, 3, 5))
			require.NoError(t, err)
			assert.True(t, got.Equal(secret), "untampered extra share should pass the consistency check")
		})
	}
}

func TestThresholdOne(t *testing.T) {
	f := field.Ed25519()
	secret, err := f.Random(rand.Reader)
	require.NoError(t, err)

	set, err := Split(f, secret, 1, 3, rand.Reader)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		got, err := Reconstruct(f, 1, pick(set, i))
		require.NoError(t, err)
		assert.True(t, got.Equal(secret), "share %d alone should reconstruct", i)
	}
}

func TestAnyThresholdSubsetReconstructs(t *testing.T) {
	f := field.Mersenne127()
	secret, err := f.Random(rand.Reader)
	require.NoError(t, err)

	set, err := Split(f, secret, 3, 7, rand.Reader)
	require.NoError(t, err)

	subsets := [][]int{{1, 2, 3}, {5, 6, 7}, {7, 1, 4}, {2, 4, 6}}
	for _, subset := range subsets {
		got, err := Reconstruct(f, 3, pick(set, subset...))
		require.NoError(t, err)
		assert.True(t, got.Equal(secret), "subset %v should reconstruct the same secret", subset)
	}

	got, err := Reconstruct(f, 3, set.Shares)
	require.NoError(t, err)
	assert.True(t, got.Equal(secret), "all shares should reconstruct")
}

func TestSplitRejectsInvalidThreshold(t *testing.T) {
	f := field.Ed25519()
	cases := []struct{ t, n int }{{0, 1}, {2, 4}, {2, 6}, {-1, -1}, {3, 5}}
	for _, c := range cases {
		_, err := Split(f, f.One(), c.t, c.n, rand.Reader)
		assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "t=%d n=%d", c.t, c.n)
	}

	small, err := field.NewPrime("p5", big.NewInt(5))
	require.NoError(t, err)
	_, err = Split(small, small.One(), 2, 5, rand.Reader)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "indices must be distinct field elements")

	_, err = Split(f, field.Mersenne127().One(), 1, 3, rand.Reader)
	assert.Error(t, err, "secret from another field should be rejected")
}

func TestReconstructRejectsMalformedShares(t *testing.T) {
	f := field.Ed25519()
	set, err := Split(f, f.FromUint64(7), 2, 5, rand.Reader)
	require.NoError(t, err)

	dup := pick(set, 2, 2)
	_, err = Reconstruct(f, 2, dup)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)

	zero := pick(set, 1, 2)
	zero[0].Index = 0
	_, err = Reconstruct(f, 2, zero)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)

	mixed := pick(set, 1, 2)
	mixed[1].Epoch = 9
	_, err = Reconstruct(f, 2, mixed)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)

	_, err = Reconstruct(f, 0, set.Shares)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)
}

func TestLagrangeAtZeroMatchesInterpolation(t *testing.T) {
	f := field.Ed25519()
	secret, err := f.Random(rand.Reader)
	require.NoError(t, err)
	set, err := Split(f, secret, 3, 7, rand.Reader)
	require.NoError(t, err)

	quorum := []int{2, 5, 6}
	acc := f.Zero()
	for _, i := range quorum {
		l, err := LagrangeAtZero(f, quorum, i)
		require.NoError(t, err)
		s, _ := set.Share(i)
		acc = acc.Add(l.Mul(s.Value))
	}
	assert.True(t, acc.Equal(secret))

	_, err = LagrangeAtZero(f, quorum, 4)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)
	_, err = LagrangeAtZero(f, []int{1, 1}, 1)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)
}

func TestFeldmanVerification(t *testing.T) {
	g := field.Ed25519()
	secret, err := g.Random(rand.Reader)
	require.NoError(t, err)

	set, err := Split(g, secret, 3, 7, rand.Reader)
	require.NoError(t, err)
	require.Len(t, set.Commitments, 3)
	assert.True(t, set.PublicKey().Equal(g.ScalarBaseMult(secret)), "C_0 should commit to the secret")

	for _, s := range set.Shares {
		assert.NoError(t, VerifyShare(g, s, set.Commitments), "share %d should verify", s.Index)
	}

	bad := set.Shares[3]
	bad.Value = bad.Value.Add(g.One())
	assert.ErrorIs(t, VerifyShare(g, bad, set.Commitments), interfaces.ErrInconsistentShares)

	moved := set.Shares[3]
	moved.Index = 2
	assert.ErrorIs(t, VerifyShare(g, moved, set.Commitments), interfaces.ErrInconsistentShares)

	assert.ErrorIs(t, VerifyShare(g, set.Shares[0], nil), interfaces.ErrInconsistentShares)

	plain, err := Split(field.Mersenne127(), field.Mersenne127().One(), 1, 3, rand.Reader)
	require.NoError(t, err)
	assert.Empty(t, plain.Commitments, "non-group fields have no commitments")
	assert.Nil(t, plain.PublicKey())
}

func TestPolynomialEval(t *testing.T) {
	f := field.Mersenne127()
	p := &Polynomial{f: f, coeffs: []field.Element{f.FromUint64(3), f.FromUint64(2), f.FromUint64(1)}}

	// 3 + 2x + x^2 at x=4
	assert.True(t, p.Eval(f.FromUint64(4)).Equal(f.FromUint64(27)))
	assert.Equal(t, 2, p.Degree())
	assert.Panics(t, func() { p.Eval(f.Zero()) })

	p.Zeroize()
	assert.Nil(t, p.coeffs)
}

func TestSplitBytes(t *testing.T) {
	secret := bytes.Repeat([]byte{0xab, 0x01}, 16)

	parts, err := SplitBytes(secret, 2, 5)
	require.NoError(t, err)
	require.Len(t, parts, 5)

	got, err := CombineBytes([][]byte{parts[4], parts[1]}, 2)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	_, err = CombineBytes(parts[:1], 2)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	_, err = CombineBytes([][]byte{parts[0], parts[0]}, 2)
	assert.ErrorIs(t, err, interfaces.ErrInconsistentShares)

	_, err = SplitBytes(secret, 1, 3)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)
	_, err = SplitBytes(secret, 2, 4)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)
}
