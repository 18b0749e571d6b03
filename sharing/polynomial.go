package sharing

import (
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/threshold-curator-kms/field"
)

// Polynomial is a polynomial over a prime field,
// f(x) = coeffs[0] + coeffs[1]*x + ... + coeffs[d]*x^d.
// The constant term is the shared secret.
type Polynomial struct {
	f      field.Field
	coeffs []field.Element
}

// NewRandomPolynomial returns a polynomial of the given degree with the
// secret as constant term and every other coefficient sampled from r.
func NewRandomPolynomial(f field.Field, secret field.Element, degree int, r io.Reader) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.New("polynomial degree must be non-negative")
	}

	coeffs := make([]field.Element, degree+1)
	coeffs[0] = secret
	for k := 1; k <= degree; k++ {
		c, err := f.Random(r)
		if err != nil {
			return nil, fmt.Errorf("failed to sample coefficient %d: %w", k, err)
		}
		coeffs[k] = c
	}

	return &Polynomial{f: f, coeffs: coeffs}, nil
}

// Degree returns the degree of the polynomial.
func (p *Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

// Eval evaluates the polynomial at x with Horner's rule. Evaluating at zero
// panics since it would return the secret: callers never need it.
func (p *Polynomial) Eval(x field.Element) field.Element {
	if x.IsZero() {
		panic("sharing: polynomial evaluated at zero")
	}

	acc := p.coeffs[len(p.coeffs)-1]
	for k := len(p.coeffs) - 2; k >= 0; k-- {
		acc = acc.Mul(x).Add(p.coeffs[k])
	}
	return acc
}

// Zeroize replaces every coefficient with zero and drops the references.
// Field elements are immutable values so this is the best available effort.
func (p *Polynomial) Zeroize() {
	if p == nil {
		return
	}
	zero := p.f.Zero()
	for k := range p.coeffs {
		p.coeffs[k] = zero
	}
	p.coeffs = nil
}
