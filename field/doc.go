// Package field provides the prime-field arithmetic used by secret sharing
// and the alpha protocol.
//
// Two implementations of the Field interface are available:
//
//   - Ed25519: the scalar field of the edwards25519 prime-order subgroup,
//     backed by filippo.io/edwards25519. Arithmetic is constant time and the
//     field also implements Group, which enables share commitments and
//     alpha derivation in the exponent. This is the default.
//   - Prime: any prime modulus over math/big, for testing the engine
//     against several field sizes (Mersenne127, P256Order, or a custom modulus).
//
// All elements encode to exactly ByteLen() bytes and inverting zero fails
// with ErrArithmetic.
package field
