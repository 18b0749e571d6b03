package codec

import (
	"bytes"
	"context"
	"crypto/rand"
	"math"
	"testing"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestDeriveKey(t *testing.T) {
	f := field.Ed25519()
	k1, err := DeriveKey(f.FromUint64(42), "epoch-0")
	require.NoError(t, err)
	assert.Len(t, k1, KeySize)

	k2, err := DeriveKey(f.FromUint64(42), "epoch-0")
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "derivation is deterministic")

	k3, err := DeriveKey(f.FromUint64(42), "epoch-1")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "info separates keys")

	k4, err := DeriveKey(f.FromUint64(43), "epoch-0")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)

	_, err = DeriveKey(nil, "x")
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := New(AES256GCM, make([]byte, 16))
	assert.Error(t, err, "AES-128 keys are rejected")

	_, err = New("rot13", testKey(t))
	assert.ErrorIs(t, err, ErrUnknownCipher)

	c, err := ParseCipher("ChaCha20-Poly1305")
	require.NoError(t, err)
	assert.Equal(t, ChaCha20Poly1305, c)
	_, err = ParseCipher("des")
	assert.ErrorIs(t, err, ErrUnknownCipher)
}

func TestEncryptDecrypt(t *testing.T) {
	for _, cipherName := range Ciphers {
		t.Run(string(cipherName), func(t *testing.T) {
			c, err := New(cipherName, testKey(t))
			require.NoError(t, err)

			msg := []byte("dicom series 1.2.840.113619")
			ct, err := c.Encrypt(msg)
			require.NoError(t, err)
			assert.Len(t, ct, len(msg)+c.Overhead())

			pt, err := c.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, msg, pt)

			ct[len(ct)-1] ^= 1
			_, err = c.Decrypt(ct)
			assert.ErrorIs(t, err, ErrAuthentication)

			_, err = c.Decrypt(ct[:4])
			assert.ErrorIs(t, err, ErrMalformed)

			sealed, err := c.Seal(msg, []byte("epoch-1"))
			require.NoError(t, err)
			_, err = c.Open(sealed, []byte("epoch-2"))
			assert.ErrorIs(t, err, ErrAuthentication, "aad is bound")
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 100, 1024, 1025, 3 * 1024}
	for _, cipherName := range Ciphers {
		c, err := New(cipherName, testKey(t))
		require.NoError(t, err)

		for _, size := range sizes {
			plaintext := make([]byte, size)
			_, err := rand.Read(plaintext)
			require.NoError(t, err)

			var sealed bytes.Buffer
			n, err := c.EncryptStreamChunked(bytes.NewReader(plaintext), &sealed, 1024)
			require.NoError(t, err)
			assert.Equal(t, int64(size), n)

			var opened bytes.Buffer
			n, err = c.DecryptStream(&sealed, &opened)
			require.NoError(t, err, "%s size %d", cipherName, size)
			assert.Equal(t, int64(size), n)
			assert.True(t, bytes.Equal(plaintext, opened.Bytes()), "%s size %d", cipherName, size)
		}
	}
}

func TestStreamOneMiB(t *testing.T) {
	c, err := New(AES256GCM, testKey(t))
	require.NoError(t, err)

	plaintext := make([]byte, 1<<20)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	var sealed, opened bytes.Buffer
	_, err = c.EncryptStream(bytes.NewReader(plaintext), &sealed)
	require.NoError(t, err)
	_, err = c.DecryptStream(&sealed, &opened)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, opened.Bytes()))
}

func TestStreamTamperDetection(t *testing.T) {
	c, err := New(ChaCha20Poly1305, testKey(t))
	require.NoError(t, err)

	plaintext := make([]byte, 4096)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	var sealed bytes.Buffer
	_, err = c.EncryptStreamChunked(bytes.NewReader(plaintext), &sealed, 1024)
	require.NoError(t, err)
	stream := sealed.Bytes()
	chunk := 1024 + 16

	// 4096 bytes fill four chunks exactly; the fourth carries the final flag
	require.Len(t, stream, streamHeaderSize+4*chunk)

	t.Run("cut at chunk boundary", func(t *testing.T) {
		cut := stream[:streamHeaderSize+2*chunk]
		_, err := c.DecryptStream(bytes.NewReader(cut), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("header only", func(t *testing.T) {
		_, err := c.DecryptStream(bytes.NewReader(stream[:streamHeaderSize]), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("cut inside chunk", func(t *testing.T) {
		_, err := c.DecryptStream(bytes.NewReader(stream[:streamHeaderSize+chunk+100]), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("reordered chunks", func(t *testing.T) {
		swapped := append([]byte(nil), stream...)
		first := append([]byte(nil), swapped[streamHeaderSize:streamHeaderSize+chunk]...)
		copy(swapped[streamHeaderSize:], swapped[streamHeaderSize+chunk:streamHeaderSize+2*chunk])
		copy(swapped[streamHeaderSize+chunk:], first)
		_, err := c.DecryptStream(bytes.NewReader(swapped), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("chunk size rewritten", func(t *testing.T) {
		altered := append([]byte(nil), stream...)
		altered[8] = 0x01
		_, err := c.DecryptStream(bytes.NewReader(altered), &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("bad magic", func(t *testing.T) {
		altered := append([]byte(nil), stream...)
		altered[0] = 'X'
		_, err := c.DecryptStream(bytes.NewReader(altered), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("other cipher", func(t *testing.T) {
		other, err := New(AES256GCM, testKey(t))
		require.NoError(t, err)
		_, err = other.DecryptStream(bytes.NewReader(stream), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestMeasureThroughput(t *testing.T) {
	for _, cipherName := range Ciphers {
		c, err := New(cipherName, testKey(t))
		require.NoError(t, err)

		result, err := MeasureThroughput(context.Background(), c, 1<<20)
		require.NoError(t, err)
		assert.Equal(t, 1<<20, result.Size)
		assert.NotEmpty(t, result.Ciphertext)

		for _, bps := range []float64{result.EncryptBytesPerSecond(), result.DecryptBytesPerSecond()} {
			assert.Greater(t, bps, 0.0)
			assert.False(t, math.IsInf(bps, 0) || math.IsNaN(bps), "throughput must be finite")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := New(AES256GCM, testKey(t))
	require.NoError(t, err)
	_, err = MeasureThroughput(ctx, c, 16)
	assert.ErrorIs(t, err, context.Canceled)
}
