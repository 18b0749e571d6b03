package field

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

var (
	// ErrArithmetic is returned when an operation has no result in the field,
	// such as inverting zero.
	ErrArithmetic = errors.New("arithmetic error")

	// ErrNonCanonical is returned when an encoding is not the canonical
	// fixed-width representation of a field element or group point.
	ErrNonCanonical = errors.New("non-canonical encoding")

	// ErrUnknownField is returned by ByName for unsupported field names.
	ErrUnknownField = errors.New("unknown field")
)

// Element is a value of a prime field. Elements are immutable: every
// operation returns a new element. Mixing elements of different fields
// is a programming error and panics.
type Element interface {
	Add(Element) Element
	Sub(Element) Element
	Mul(Element) Element
	Neg() Element

	// Invert returns the multiplicative inverse, or ErrArithmetic for zero.
	Invert() (Element, error)

	// Equal compares encodings in constant time.
	Equal(Element) bool
	IsZero() bool

	// Bytes returns the canonical encoding, always Field().ByteLen() bytes.
	Bytes() []byte
	String() string
	Field() Field
}

// Field is a prime field of fixed modulus.
type Field interface {
	Name() string
	Modulus() *big.Int
	ByteLen() int

	Zero() Element
	One() Element
	FromUint64(uint64) Element

	// FromBytes decodes a canonical encoding produced by Element.Bytes.
	FromBytes([]byte) (Element, error)

	// FromUniformBytes reduces a wide uniformly random string into the field.
	// The input must be at least ByteLen()+16 bytes to keep the bias negligible.
	FromUniformBytes([]byte) (Element, error)

	// Random samples a uniformly random element from the reader.
	Random(io.Reader) (Element, error)
}

// Point is an element of the prime-order group associated with a Group field.
type Point interface {
	Add(Point) Point
	Equal(Point) bool
	Bytes() []byte
}

// Group is a scalar field that is also the exponent field of a prime-order
// group. Only group fields support share commitments and alpha derivation
// in the exponent.
type Group interface {
	Field

	Identity() Point
	BasePoint() Point
	ScalarBaseMult(Element) Point
	ScalarMult(Element, Point) Point
	PointFromBytes([]byte) (Point, error)
}

// Names of the predefined fields accepted by ByName.
const (
	NameEd25519     = "ed25519"
	NameMersenne127 = "mersenne127"
	NameP256        = "p256"
)

// ByName returns one of the predefined fields.
func ByName(name string) (Field, error) {
	switch strings.ToLower(name) {
	case NameEd25519, "":
		return Ed25519(), nil
	case NameMersenne127:
		return Mersenne127(), nil
	case NameP256:
		return P256Order(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// AsGroup reports whether f supports group operations.
func AsGroup(f Field) (Group, bool) {
	g, ok := f.(Group)
	return g, ok
}

// Sum adds all elements. It panics on an empty list.
func Sum(elems []Element) Element {
	acc := elems[0]
	for _, e := range elems[1:] {
		acc = acc.Add(e)
	}
	return acc
}
