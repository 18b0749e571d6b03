// Package codec is the symmetric layer applied to imaging data once a
// protection key has been recovered.
//
// Keys are derived from a recovered field element with HKDF-SHA256 and used
// with either AES-256-GCM or ChaCha20-Poly1305. Small buffers are sealed in
// one piece (nonce||ciphertext); files go through a chunked stream format
// whose chunks carry a counter nonce and a final-chunk flag, so reordered,
// dropped or truncated chunks are detected.
package codec
