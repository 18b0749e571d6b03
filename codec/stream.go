package codec

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Stream format:
//
//	header: "RNF1" | cipher id (1) | chunk size (4, BE) | nonce prefix (4)
//	chunk:  AEAD(nonce = prefix || counter (8, BE), aad = header || final flag)
//
// Every chunk but the last holds exactly chunk size plaintext bytes. The
// last chunk may be short or empty and is sealed with the final flag set,
// so a stream cut at a chunk boundary fails to open.
const (
	streamMagic      = "RNF1"
	noncePrefixSize  = 4
	streamHeaderSize = len(streamMagic) + 1 + 4 + noncePrefixSize

	// DefaultChunkSize is the plaintext size of a stream chunk.
	DefaultChunkSize = 64 * 1024

	// MaxChunkSize bounds the chunk size a decoder accepts.
	MaxChunkSize = 16 * 1024 * 1024
)

// EncryptStream encrypts r into w in DefaultChunkSize chunks and returns the
// number of plaintext bytes read.
func (c *Codec) EncryptStream(r io.Reader, w io.Writer) (int64, error) {
	return c.EncryptStreamChunked(r, w, DefaultChunkSize)
}

// EncryptStreamChunked is EncryptStream with an explicit chunk size.
func (c *Codec) EncryptStreamChunked(r io.Reader, w io.Writer, chunkSize int) (int64, error) {
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return 0, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	header := make([]byte, streamHeaderSize)
	copy(header, streamMagic)
	header[4] = c.cipher.id()
	binary.BigEndian.PutUint32(header[5:9], uint32(chunkSize))
	if _, err := rand.Read(header[9:]); err != nil {
		return 0, fmt.Errorf("failed to generate nonce prefix: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write stream header: %w", err)
	}

	br := bufio.NewReaderSize(r, chunkSize)
	plain := make([]byte, chunkSize)
	sealed := make([]byte, 0, chunkSize+c.aead.Overhead())
	nonce := make([]byte, c.aead.NonceSize())
	copy(nonce, header[9:])
	aad := append(append([]byte(nil), header...), 0)

	var total int64
	for counter := uint64(0); ; counter++ {
		n, err := io.ReadFull(br, plain)
		final := false
		switch {
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			final = true
		case err != nil:
			return total, fmt.Errorf("failed to read plaintext: %w", err)
		default:
			if _, err := br.Peek(1); errors.Is(err, io.EOF) {
				final = true
			} else if err != nil {
				return total, fmt.Errorf("failed to read plaintext: %w", err)
			}
		}
		total += int64(n)

		binary.BigEndian.PutUint64(nonce[noncePrefixSize:], counter)
		aad[len(aad)-1] = finalFlag(final)
		sealed = c.aead.Seal(sealed[:0], nonce, plain[:n], aad)
		if _, err := w.Write(sealed); err != nil {
			return total, fmt.Errorf("failed to write chunk %d: %w", counter, err)
		}
		if final {
			wipeBytes(plain)
			return total, nil
		}
	}
}

// DecryptStream decrypts a stream produced by EncryptStream into w and
// returns the number of plaintext bytes written. Each chunk is
// authenticated before it is written. A stream missing its final chunk
// fails with ErrTruncated.
func (c *Codec) DecryptStream(r io.Reader, w io.Writer) (int64, error) {
	header := make([]byte, streamHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: short stream header: %w", ErrMalformed, err)
	}
	if string(header[:4]) != streamMagic {
		return 0, fmt.Errorf("%w: bad magic %q", ErrMalformed, header[:4])
	}
	streamCipher, err := cipherFromID(header[4])
	if err != nil {
		return 0, err
	}
	if streamCipher != c.cipher {
		return 0, fmt.Errorf("%w: stream uses %s, codec uses %s", ErrMalformed, streamCipher, c.cipher)
	}
	chunkSize := int(binary.BigEndian.Uint32(header[5:9]))
	if chunkSize < 1 || chunkSize > MaxChunkSize {
		return 0, fmt.Errorf("%w: chunk size %d", ErrMalformed, chunkSize)
	}

	overhead := c.aead.Overhead()
	br := bufio.NewReaderSize(r, chunkSize+overhead)
	sealed := make([]byte, chunkSize+overhead)
	plain := make([]byte, 0, chunkSize)
	nonce := make([]byte, c.aead.NonceSize())
	copy(nonce, header[9:])
	aad := append(append([]byte(nil), header...), 0)

	var total int64
	for counter := uint64(0); ; counter++ {
		n, err := io.ReadFull(br, sealed)
		final := false
		switch {
		case errors.Is(err, io.EOF):
			return total, fmt.Errorf("%w: after %d chunks", ErrTruncated, counter)
		case errors.Is(err, io.ErrUnexpectedEOF):
			final = true
		case err != nil:
			return total, fmt.Errorf("failed to read chunk %d: %w", counter, err)
		default:
			if _, err := br.Peek(1); errors.Is(err, io.EOF) {
				final = true
			} else if err != nil {
				return total, fmt.Errorf("failed to read chunk %d: %w", counter, err)
			}
		}
		if n < overhead {
			return total, fmt.Errorf("%w: chunk %d is %d bytes", ErrTruncated, counter, n)
		}

		binary.BigEndian.PutUint64(nonce[noncePrefixSize:], counter)
		aad[len(aad)-1] = finalFlag(final)
		plain, err = c.aead.Open(plain[:0], nonce, sealed[:n], aad)
		if err != nil {
			if final && n == len(sealed) {
				aad[len(aad)-1] = finalFlag(false)
				if _, innerErr := c.aead.Open(nil, nonce, sealed[:n], aad); innerErr == nil {
					return total, fmt.Errorf("%w: after %d chunks", ErrTruncated, counter+1)
				}
			}
			return total, fmt.Errorf("%w: chunk %d", ErrAuthentication, counter)
		}

		if _, err := w.Write(plain); err != nil {
			return total, fmt.Errorf("failed to write plaintext: %w", err)
		}
		total += int64(len(plain))
		if final {
			return total, nil
		}
	}
}

func finalFlag(final bool) byte {
	if final {
		return 1
	}
	return 0
}
