package codec

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/threshold-curator-kms/metrics"
)

// ErrRoundTrip is returned when a decrypted buffer differs from the
// original plaintext.
var ErrRoundTrip = errors.New("round trip mismatch")

// Throughput is one encrypt/decrypt measurement.
type Throughput struct {
	Cipher  Cipher
	Size    int
	Encrypt time.Duration
	Decrypt time.Duration

	// Ciphertext is the encrypted stream, kept so callers can store it.
	Ciphertext []byte
}

// EncryptBytesPerSecond returns the encryption throughput.
func (t Throughput) EncryptBytesPerSecond() float64 {
	return bytesPerSecond(t.Size, t.Encrypt)
}

// DecryptBytesPerSecond returns the decryption throughput.
func (t Throughput) DecryptBytesPerSecond() float64 {
	return bytesPerSecond(t.Size, t.Decrypt)
}

func bytesPerSecond(size int, d time.Duration) float64 {
	if d <= 0 {
		d = time.Nanosecond
	}
	return float64(size) / d.Seconds()
}

// MeasureThroughput encrypts and decrypts a random buffer of size bytes
// through the streaming format, timing each direction. The decrypted buffer
// must equal the input, otherwise ErrRoundTrip is returned.
func MeasureThroughput(ctx context.Context, c *Codec, size int) (*Throughput, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %d", size)
	}

	plaintext := make([]byte, size)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, fmt.Errorf("failed to generate plaintext: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Throughput{Cipher: c.cipher, Size: size}

	var sealed bytes.Buffer
	sealed.Grow(size + size/DefaultChunkSize*c.aead.Overhead() + streamHeaderSize + c.aead.Overhead())
	start := time.Now()
	if _, err := c.EncryptStream(bytes.NewReader(plaintext), &sealed); err != nil {
		return nil, err
	}
	result.Encrypt = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opened bytes.Buffer
	opened.Grow(size)
	start = time.Now()
	if _, err := c.DecryptStream(bytes.NewReader(sealed.Bytes()), &opened); err != nil {
		return nil, err
	}
	result.Decrypt = time.Since(start)

	if !bytes.Equal(plaintext, opened.Bytes()) {
		return nil, ErrRoundTrip
	}
	result.Ciphertext = sealed.Bytes()

	metrics.SetThroughput(string(c.cipher), "encrypt", result.EncryptBytesPerSecond())
	metrics.SetThroughput(string(c.cipher), "decrypt", result.DecryptBytesPerSecond())
	return result, nil
}
