package field

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
)

// Prime is a prime field over math/big with a configurable modulus.
// Every result is reduced modulo p and encoded at a fixed width, so
// values never grow across repeated operations. math/big is not constant
// time; use Ed25519 where timing matters.
type Prime struct {
	name    string
	p       *big.Int
	byteLen int
}

// NewPrime creates a prime field with the given modulus.
func NewPrime(name string, modulus *big.Int) (*Prime, error) {
	if modulus == nil || modulus.Cmp(big.NewInt(3)) <= 0 {
		return nil, errors.New("modulus must be a prime larger than 3")
	}
	if !modulus.ProbablyPrime(32) {
		return nil, fmt.Errorf("modulus %s is not prime", modulus.String())
	}

	return &Prime{
		name:    name,
		p:       new(big.Int).Set(modulus),
		byteLen: (modulus.BitLen() + 7) / 8,
	}, nil
}

var (
	mersenneOnce sync.Once
	mersenne     *Prime
	p256Once     sync.Once
	p256         *Prime
)

// Mersenne127 returns the field of integers modulo 2^127-1.
func Mersenne127() *Prime {
	mersenneOnce.Do(func() {
		p := new(big.Int).Lsh(big.NewInt(1), 127)
		p.Sub(p, big.NewInt(1))
		mersenne = &Prime{name: NameMersenne127, p: p, byteLen: 16}
	})
	return mersenne
}

// P256Order returns the scalar field of the NIST P-256 curve.
func P256Order() *Prime {
	p256Once.Do(func() {
		p256 = &Prime{name: NameP256, p: new(big.Int).Set(elliptic.P256().Params().N), byteLen: 32}
	})
	return p256
}

func (f *Prime) Name() string      { return f.name }
func (f *Prime) Modulus() *big.Int { return new(big.Int).Set(f.p) }
func (f *Prime) ByteLen() int      { return f.byteLen }

func (f *Prime) Zero() Element { return f.elem(new(big.Int)) }
func (f *Prime) One() Element  { return f.elem(big.NewInt(1)) }

func (f *Prime) FromUint64(v uint64) Element {
	return f.elem(new(big.Int).SetUint64(v))
}

func (f *Prime) FromBytes(b []byte) (Element, error) {
	if len(b) != f.byteLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrNonCanonical, f.byteLen, len(b))
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(f.p) >= 0 {
		return nil, fmt.Errorf("%w: value exceeds modulus", ErrNonCanonical)
	}
	return &primeElement{f: f, v: v}, nil
}

func (f *Prime) FromUniformBytes(b []byte) (Element, error) {
	if len(b) < f.byteLen+16 {
		return nil, fmt.Errorf("uniform input too short: need %d bytes, got %d", f.byteLen+16, len(b))
	}
	return f.elem(new(big.Int).SetBytes(b)), nil
}

func (f *Prime) Random(r io.Reader) (Element, error) {
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, f.p)
	if err != nil {
		return nil, fmt.Errorf("failed to sample field element: %w", err)
	}
	return &primeElement{f: f, v: v}, nil
}

func (f *Prime) elem(v *big.Int) *primeElement {
	return &primeElement{f: f, v: v.Mod(v, f.p)}
}

type primeElement struct {
	f *Prime
	v *big.Int
}

func (e *primeElement) other(o Element) *primeElement {
	x, ok := o.(*primeElement)
	if !ok || x.f.p.Cmp(e.f.p) != 0 {
		panic("field: mixing elements of different fields")
	}
	return x
}

func (e *primeElement) Add(o Element) Element {
	return e.f.elem(new(big.Int).Add(e.v, e.other(o).v))
}

func (e *primeElement) Sub(o Element) Element {
	return e.f.elem(new(big.Int).Sub(e.v, e.other(o).v))
}

func (e *primeElement) Mul(o Element) Element {
	return e.f.elem(new(big.Int).Mul(e.v, e.other(o).v))
}

func (e *primeElement) Neg() Element {
	return e.f.elem(new(big.Int).Neg(e.v))
}

func (e *primeElement) Invert() (Element, error) {
	if e.v.Sign() == 0 {
		return nil, fmt.Errorf("%w: inverse of zero", ErrArithmetic)
	}
	inv := new(big.Int).ModInverse(e.v, e.f.p)
	if inv == nil {
		return nil, fmt.Errorf("%w: element not invertible", ErrArithmetic)
	}
	return &primeElement{f: e.f, v: inv}, nil
}

func (e *primeElement) Equal(o Element) bool {
	x, ok := o.(*primeElement)
	if !ok || x.f.p.Cmp(e.f.p) != 0 {
		return false
	}
	return subtle.ConstantTimeCompare(e.Bytes(), x.Bytes()) == 1
}

func (e *primeElement) IsZero() bool { return e.v.Sign() == 0 }

func (e *primeElement) Bytes() []byte {
	return e.v.FillBytes(make([]byte, e.f.byteLen))
}

func (e *primeElement) String() string { return hex.EncodeToString(e.Bytes()) }

func (e *primeElement) Field() Field { return e.f }
