package codec

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
)

// Signed stream format: an RNF1 stream followed by a trailer
//
//	writer public key (32) | Ed25519 signature (64)
//
// The signature covers signatureDomain || SHA-256(stream), so it names the
// party that produced the ciphertext, which the AEAD tag alone cannot.
const (
	signatureDomain = "threshold-curator-kms/fn-writer/v1"

	// SignatureTrailerSize is the number of bytes appended to a signed stream.
	SignatureTrailerSize = ed25519.PublicKeySize + ed25519.SignatureSize
)

// ErrSignature is returned when a signed stream lacks a valid signature of
// the expected writer.
var ErrSignature = errors.New("writer signature verification failed")

// EncryptSignedStream is EncryptStream followed by the writer's signature
// over the produced stream.
func (c *Codec) EncryptSignedStream(r io.Reader, w io.Writer, writer ed25519.PrivateKey) (int64, error) {
	if len(writer) != ed25519.PrivateKeySize {
		return 0, fmt.Errorf("invalid writer key size %d", len(writer))
	}

	digest := sha256.New()
	n, err := c.EncryptStream(r, io.MultiWriter(w, digest))
	if err != nil {
		return n, err
	}
	if _, err := w.Write(signTrailer(digest, writer)); err != nil {
		return n, fmt.Errorf("failed to write signature: %w", err)
	}
	return n, nil
}

// SignStream returns stream with the writer's signature appended. stream
// must be a complete output of EncryptStream.
func SignStream(stream []byte, writer ed25519.PrivateKey) ([]byte, error) {
	if len(writer) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid writer key size %d", len(writer))
	}
	digest := sha256.New()
	digest.Write(stream)

	out := make([]byte, 0, len(stream)+SignatureTrailerSize)
	out = append(out, stream...)
	return append(out, signTrailer(digest, writer)...), nil
}

// DecryptSignedStream decrypts a signed stream into w and checks that it
// was signed by writer. Chunks are written as they authenticate, so on
// ErrSignature the caller must discard what was written.
func (c *Codec) DecryptSignedStream(r io.Reader, w io.Writer, writer ed25519.PublicKey) (int64, error) {
	if len(writer) != ed25519.PublicKeySize {
		return 0, fmt.Errorf("%w: invalid writer key size %d", ErrSignature, len(writer))
	}

	digest := sha256.New()
	tr := &trailerReader{r: r, size: SignatureTrailerSize, scratch: make([]byte, 32*1024)}
	n, err := c.DecryptStream(io.TeeReader(tr, digest), w)
	if err != nil {
		return n, err
	}

	trailer := tr.trailer()
	if len(trailer) != SignatureTrailerSize {
		return n, fmt.Errorf("%w: missing signature trailer", ErrSignature)
	}
	pub, sig := trailer[:ed25519.PublicKeySize], trailer[ed25519.PublicKeySize:]
	if !bytes.Equal(pub, writer) {
		return n, fmt.Errorf("%w: signed by another writer", ErrSignature)
	}
	if !ed25519.Verify(writer, signedMessage(digest), sig) {
		return n, fmt.Errorf("%w: bad signature", ErrSignature)
	}
	return n, nil
}

func signedMessage(digest hash.Hash) []byte {
	return digest.Sum([]byte(signatureDomain))
}

func signTrailer(digest hash.Hash, writer ed25519.PrivateKey) []byte {
	trailer := make([]byte, 0, SignatureTrailerSize)
	trailer = append(trailer, writer.Public().(ed25519.PublicKey)...)
	return append(trailer, ed25519.Sign(writer, signedMessage(digest))...)
}

// trailerReader passes r through but withholds its last size bytes.
type trailerReader struct {
	r       io.Reader
	size    int
	buf     []byte
	scratch []byte
	eof     bool
}

func (t *trailerReader) Read(p []byte) (int, error) {
	for !t.eof && len(t.buf) <= t.size {
		n, err := t.r.Read(t.scratch)
		t.buf = append(t.buf, t.scratch[:n]...)
		if errors.Is(err, io.EOF) {
			t.eof = true
		} else if err != nil {
			return 0, err
		}
	}

	avail := len(t.buf) - t.size
	if avail <= 0 {
		return 0, io.EOF
	}
	n := copy(p, t.buf[:avail])
	t.buf = t.buf[n:]
	return n, nil
}

// trailer returns the withheld bytes once r is exhausted.
func (t *trailerReader) trailer() []byte {
	if !t.eof {
		return nil
	}
	return t.buf
}
