package sharing

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// Params are the parameters of a (t, n) share set.
type Params struct {
	// T shares are required to reconstruct.
	T int
	// N shares are produced, always 2T+1.
	N     int
	Field field.Field
}

// NewParams derives n = 2t+1 for threshold t.
func NewParams(f field.Field, t int) (Params, error) {
	p := Params{T: t, N: 2*t + 1, Field: f}
	return p, p.Validate()
}

// Validate checks t >= 1, n = 2t+1 and that every share index is a distinct
// non-zero element of the field.
func (p Params) Validate() error {
	if p.Field == nil {
		return fmt.Errorf("%w: no field configured", interfaces.ErrInvalidThreshold)
	}
	if p.T < 1 {
		return fmt.Errorf("%w: threshold %d must be at least 1", interfaces.ErrInvalidThreshold, p.T)
	}
	if p.N != 2*p.T+1 {
		return fmt.Errorf("%w: n=%d must equal 2t+1=%d", interfaces.ErrInvalidThreshold, p.N, 2*p.T+1)
	}
	if big.NewInt(int64(p.N)).Cmp(p.Field.Modulus()) >= 0 {
		return fmt.Errorf("%w: n=%d does not fit field %s", interfaces.ErrInvalidThreshold, p.N, p.Field.Name())
	}
	return nil
}

// ShareSet is the output of one split: n shares of which any t reconstruct
// the secret, plus the Feldman commitments when the field is a group.
type ShareSet struct {
	Params
	Shares      []interfaces.Share
	Commitments []field.Point
}

// Split shares secret among n parties with threshold t. It requires t >= 1
// and n = 2t+1, returning ErrInvalidThreshold otherwise. The sharing
// polynomial is zeroized before returning.
func Split(f field.Field, secret field.Element, t, n int, r io.Reader) (*ShareSet, error) {
	params := Params{T: t, N: n, Field: f}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("nil secret")
	}
	if secret.Field().Modulus().Cmp(f.Modulus()) != 0 {
		return nil, fmt.Errorf("secret belongs to field %s, not %s", secret.Field().Name(), f.Name())
	}

	poly, err := NewRandomPolynomial(f, secret, t-1, r)
	if err != nil {
		return nil, err
	}
	defer poly.Zeroize()

	set := &ShareSet{Params: params, Shares: make([]interfaces.Share, n)}
	for i := 1; i <= n; i++ {
		set.Shares[i-1] = interfaces.Share{Index: i, Value: poly.Eval(f.FromUint64(uint64(i)))}
	}

	if g, ok := field.AsGroup(f); ok {
		set.Commitments = Commit(g, poly)
	}

	return set, nil
}

// SetEpoch stamps every share with the epoch of the chain link it belongs to.
func (s *ShareSet) SetEpoch(epoch uint64) {
	for i := range s.Shares {
		s.Shares[i].Epoch = epoch
	}
}

// Share returns the share with the given index.
func (s *ShareSet) Share(index int) (interfaces.Share, bool) {
	if index < 1 || index > len(s.Shares) {
		return interfaces.Share{}, false
	}
	return s.Shares[index-1], true
}

// PublicKey returns secret*B, the commitment to the constant term.
// It is nil when the field is not a group.
func (s *ShareSet) PublicKey() field.Point {
	if len(s.Commitments) == 0 {
		return nil
	}
	return s.Commitments[0]
}

// Wipe drops the share values.
func (s *ShareSet) Wipe() {
	zero := s.Field.Zero()
	for i := range s.Shares {
		s.Shares[i].Value = zero
	}
	s.Shares = nil
}

// Reconstruct recovers the secret from at least t shares. The first t shares
// determine the polynomial; every additional share must lie on it, otherwise
// ErrInconsistentShares is returned. Fewer than t shares yield
// ErrInsufficientShares.
func Reconstruct(f field.Field, t int, shares []interfaces.Share) (field.Element, error) {
	if t < 1 {
		return nil, fmt.Errorf("%w: threshold %d must be at least 1", interfaces.ErrInvalidThreshold, t)
	}
	if len(shares) < t {
		return nil, fmt.Errorf("%w: have %d, need %d", interfaces.ErrInsufficientShares, len(shares), t)
	}
	if err := checkShares(shares); err != nil {
		return nil, err
	}

	base := shares[:t]
	secret, err := InterpolateAt(f, base, f.Zero())
	if err != nil {
		return nil, err
	}

	for _, extra := range shares[t:] {
		expected, err := InterpolateAt(f, base, f.FromUint64(uint64(extra.Index)))
		if err != nil {
			return nil, err
		}
		if !expected.Equal(extra.Value) {
			return nil, fmt.Errorf("%w: share %d does not match the other shares", interfaces.ErrInconsistentShares, extra.Index)
		}
	}

	return secret, nil
}

// InterpolateAt evaluates at x the unique polynomial of degree len(shares)-1
// passing through the shares.
func InterpolateAt(f field.Field, shares []interfaces.Share, x field.Element) (field.Element, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares to interpolate", interfaces.ErrInsufficientShares)
	}

	xs := make([]field.Element, len(shares))
	for i, s := range shares {
		xs[i] = f.FromUint64(uint64(s.Index))
	}

	acc := f.Zero()
	for i, s := range shares {
		num, den := f.One(), f.One()
		for j := range shares {
			if j == i {
				continue
			}
			num = num.Mul(x.Sub(xs[j]))
			den = den.Mul(xs[i].Sub(xs[j]))
		}
		inv, err := den.Invert()
		if err != nil {
			return nil, fmt.Errorf("interpolation at index %d: %w", s.Index, err)
		}
		acc = acc.Add(s.Value.Mul(num).Mul(inv))
	}
	return acc, nil
}

// LagrangeAtZero returns the Lagrange basis coefficient of index i over the
// given index set, evaluated at zero: prod_{j != i} x_j / (x_j - x_i).
func LagrangeAtZero(f field.Field, indices []int, i int) (field.Element, error) {
	seen := make(map[int]struct{}, len(indices))
	found := false
	for _, j := range indices {
		if j < 1 {
			return nil, fmt.Errorf("%w: invalid index %d", interfaces.ErrInconsistentShares, j)
		}
		if _, dup := seen[j]; dup {
			return nil, fmt.Errorf("%w: duplicate index %d", interfaces.ErrInconsistentShares, j)
		}
		seen[j] = struct{}{}
		found = found || j == i
	}
	if !found {
		return nil, fmt.Errorf("%w: index %d not in set", interfaces.ErrInconsistentShares, i)
	}

	xi := f.FromUint64(uint64(i))
	num, den := f.One(), f.One()
	for _, j := range indices {
		if j == i {
			continue
		}
		xj := f.FromUint64(uint64(j))
		num = num.Mul(xj)
		den = den.Mul(xj.Sub(xi))
	}

	inv, err := den.Invert()
	if err != nil {
		return nil, fmt.Errorf("lagrange coefficient of %d: %w", i, err)
	}
	return num.Mul(inv), nil
}

func checkShares(shares []interfaces.Share) error {
	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		if s.Index < 1 {
			return fmt.Errorf("%w: invalid share index %d", interfaces.ErrInconsistentShares, s.Index)
		}
		if s.Value == nil {
			return fmt.Errorf("%w: share %d has no value", interfaces.ErrInconsistentShares, s.Index)
		}
		if _, dup := seen[s.Index]; dup {
			return fmt.Errorf("%w: duplicate share index %d", interfaces.ErrInconsistentShares, s.Index)
		}
		if s.Epoch != shares[0].Epoch {
			return fmt.Errorf("%w: shares from epochs %d and %d", interfaces.ErrInconsistentShares, shares[0].Epoch, s.Epoch)
		}
		seen[s.Index] = struct{}{}
	}
	return nil
}
