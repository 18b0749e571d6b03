package field

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"sync"

	"filippo.io/edwards25519"
)

// Ed25519Field is the scalar field of the edwards25519 prime-order subgroup,
// modulo l = 2^252 + 27742317777372353535851937790883648493. Arithmetic is
// constant time. It is the default field and the only Group implementation.
type Ed25519Field struct {
	l *big.Int
}

var (
	ed25519Once sync.Once
	ed25519F    *Ed25519Field
)

// Ed25519 returns the edwards25519 scalar field.
func Ed25519() *Ed25519Field {
	ed25519Once.Do(func() {
		l, _ := new(big.Int).SetString("7237005577332262213973186563042994240857116359379907606001950938285454250989", 10)
		ed25519F = &Ed25519Field{l: l}
	})
	return ed25519F
}

func (f *Ed25519Field) Name() string      { return NameEd25519 }
func (f *Ed25519Field) Modulus() *big.Int { return new(big.Int).Set(f.l) }
func (f *Ed25519Field) ByteLen() int      { return 32 }

func (f *Ed25519Field) Zero() Element { return &edScalar{s: edwards25519.NewScalar()} }

func (f *Ed25519Field) One() Element { return f.FromUint64(1) }

func (f *Ed25519Field) FromUint64(v uint64) Element {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], v)
	s, err := edwards25519.NewScalar().SetCanonicalBytes(buf[:])
	if err != nil {
		// 64-bit values are always below l
		panic(err)
	}
	return &edScalar{s: s}
}

func (f *Ed25519Field) FromBytes(b []byte) (Element, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonical, err)
	}
	return &edScalar{s: s}, nil
}

func (f *Ed25519Field) FromUniformBytes(b []byte) (Element, error) {
	if len(b) < 64 {
		return nil, fmt.Errorf("uniform input too short: need 64 bytes, got %d", len(b))
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(b[:64])
	if err != nil {
		return nil, err
	}
	return &edScalar{s: s}, nil
}

func (f *Ed25519Field) Random(r io.Reader) (Element, error) {
	if r == nil {
		r = rand.Reader
	}
	var buf [64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("failed to sample field element: %w", err)
	}
	return f.FromUniformBytes(buf[:])
}

func (f *Ed25519Field) Identity() Point {
	return &edPoint{p: edwards25519.NewIdentityPoint()}
}

func (f *Ed25519Field) BasePoint() Point {
	return &edPoint{p: edwards25519.NewGeneratorPoint()}
}

func (f *Ed25519Field) ScalarBaseMult(e Element) Point {
	return &edPoint{p: new(edwards25519.Point).ScalarBaseMult(toScalar(e))}
}

func (f *Ed25519Field) ScalarMult(e Element, p Point) Point {
	return &edPoint{p: new(edwards25519.Point).ScalarMult(toScalar(e), toPoint(p))}
}

func (f *Ed25519Field) PointFromBytes(b []byte) (Point, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonical, err)
	}
	return &edPoint{p: p}, nil
}

type edScalar struct {
	s *edwards25519.Scalar
}

func toScalar(e Element) *edwards25519.Scalar {
	x, ok := e.(*edScalar)
	if !ok {
		panic("field: mixing elements of different fields")
	}
	return x.s
}

func (e *edScalar) Add(o Element) Element {
	return &edScalar{s: edwards25519.NewScalar().Add(e.s, toScalar(o))}
}

func (e *edScalar) Sub(o Element) Element {
	return &edScalar{s: edwards25519.NewScalar().Subtract(e.s, toScalar(o))}
}

func (e *edScalar) Mul(o Element) Element {
	return &edScalar{s: edwards25519.NewScalar().Multiply(e.s, toScalar(o))}
}

func (e *edScalar) Neg() Element {
	return &edScalar{s: edwards25519.NewScalar().Negate(e.s)}
}

func (e *edScalar) Invert() (Element, error) {
	if e.IsZero() {
		return nil, fmt.Errorf("%w: inverse of zero", ErrArithmetic)
	}
	return &edScalar{s: edwards25519.NewScalar().Invert(e.s)}, nil
}

func (e *edScalar) Equal(o Element) bool {
	x, ok := o.(*edScalar)
	if !ok {
		return false
	}
	return e.s.Equal(x.s) == 1
}

func (e *edScalar) IsZero() bool {
	return e.s.Equal(edwards25519.NewScalar()) == 1
}

func (e *edScalar) Bytes() []byte  { return e.s.Bytes() }
func (e *edScalar) String() string { return hex.EncodeToString(e.s.Bytes()) }
func (e *edScalar) Field() Field   { return Ed25519() }

type edPoint struct {
	p *edwards25519.Point
}

func toPoint(p Point) *edwards25519.Point {
	x, ok := p.(*edPoint)
	if !ok {
		panic("field: mixing points of different groups")
	}
	return x.p
}

func (p *edPoint) Add(o Point) Point {
	return &edPoint{p: new(edwards25519.Point).Add(p.p, toPoint(o))}
}

func (p *edPoint) Equal(o Point) bool {
	x, ok := o.(*edPoint)
	if !ok {
		return false
	}
	return p.p.Equal(x.p) == 1
}

func (p *edPoint) Bytes() []byte { return p.p.Bytes() }
