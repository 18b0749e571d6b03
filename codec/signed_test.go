package codec

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedStreamRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	for _, cipherName := range Ciphers {
		c, err := New(cipherName, testKey(t))
		require.NoError(t, err)

		for _, size := range []int{0, 1, 100, 70 * 1024} {
			plaintext := make([]byte, size)
			_, err := rand.Read(plaintext)
			require.NoError(t, err)

			var signed bytes.Buffer
			n, err := c.EncryptSignedStream(bytes.NewReader(plaintext), &signed, priv)
			require.NoError(t, err)
			assert.Equal(t, int64(size), n)

			var opened bytes.Buffer
			n, err = c.DecryptSignedStream(iotest.OneByteReader(bytes.NewReader(signed.Bytes())), &opened, pub)
			require.NoError(t, err, "%s size %d", cipherName, size)
			assert.Equal(t, int64(size), n)
			assert.True(t, bytes.Equal(plaintext, opened.Bytes()), "%s size %d", cipherName, size)
		}
	}
}

func TestSignStreamMatchesStreaming(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	c, err := New(ChaCha20Poly1305, testKey(t))
	require.NoError(t, err)

	var stream bytes.Buffer
	_, err = c.EncryptStream(bytes.NewReader([]byte("slice 42 of 300")), &stream)
	require.NoError(t, err)

	signed, err := SignStream(stream.Bytes(), priv)
	require.NoError(t, err)
	assert.Len(t, signed, stream.Len()+SignatureTrailerSize)

	var opened bytes.Buffer
	_, err = c.DecryptSignedStream(bytes.NewReader(signed), &opened, pub)
	require.NoError(t, err)
	assert.Equal(t, "slice 42 of 300", opened.String())
}

func TestSignedStreamRejects(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c, err := New(AES256GCM, testKey(t))
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("pixel"), 1000)
	var signed bytes.Buffer
	_, err = c.EncryptSignedStream(bytes.NewReader(plaintext), &signed, priv)
	require.NoError(t, err)
	good := signed.Bytes()

	open := func(stream []byte, writer ed25519.PublicKey) error {
		_, err := c.DecryptSignedStream(bytes.NewReader(stream), &bytes.Buffer{}, writer)
		return err
	}

	assert.ErrorIs(t, open(good, otherPub), ErrSignature, "another writer's key")

	badSig := bytes.Clone(good)
	badSig[len(badSig)-1] ^= 1
	assert.ErrorIs(t, open(badSig, pub), ErrSignature, "flipped signature bit")

	// re-signed by someone else, claiming to be the expected writer
	resigned, err := SignStream(good[:len(good)-SignatureTrailerSize], otherPriv)
	require.NoError(t, err)
	copy(resigned[len(resigned)-SignatureTrailerSize:], pub)
	assert.ErrorIs(t, open(resigned, pub), ErrSignature)

	badBody := bytes.Clone(good)
	badBody[len(badBody)/2] ^= 1
	assert.Error(t, open(badBody, pub), "tampered ciphertext")

	assert.Error(t, open(good[:len(good)-SignatureTrailerSize], pub), "unsigned stream")
	assert.ErrorIs(t, open(good, nil), ErrSignature)

	_, err = c.EncryptSignedStream(bytes.NewReader(plaintext), &bytes.Buffer{}, priv[:10])
	assert.Error(t, err)
	_, err = SignStream(good, nil)
	assert.Error(t, err)
}
