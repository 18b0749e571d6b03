package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruteri/threshold-curator-kms/field"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every codec key.
const KeySize = 32

var (
	ErrUnknownCipher = errors.New("unknown cipher")

	// ErrAuthentication is returned when a ciphertext or one of its chunks
	// fails to authenticate.
	ErrAuthentication = errors.New("ciphertext authentication failed")

	// ErrTruncated is returned when a stream ends before its final chunk.
	ErrTruncated = errors.New("ciphertext stream truncated")

	ErrMalformed = errors.New("malformed ciphertext")
)

// Cipher names an AEAD construction.
type Cipher string

const (
	AES256GCM        Cipher = "aes-256-gcm"
	ChaCha20Poly1305 Cipher = "chacha20-poly1305"
)

// Ciphers lists the supported ciphers.
var Ciphers = []Cipher{AES256GCM, ChaCha20Poly1305}

// ParseCipher accepts a cipher name as listed in Ciphers. The empty string
// selects AES-256-GCM.
func ParseCipher(name string) (Cipher, error) {
	switch Cipher(strings.ToLower(name)) {
	case AES256GCM, "":
		return AES256GCM, nil
	case ChaCha20Poly1305:
		return ChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCipher, name)
	}
}

// id is the cipher's byte in the stream header.
func (c Cipher) id() byte {
	switch c {
	case AES256GCM:
		return 1
	case ChaCha20Poly1305:
		return 2
	default:
		return 0
	}
}

func cipherFromID(id byte) (Cipher, error) {
	switch id {
	case 1:
		return AES256GCM, nil
	case 2:
		return ChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: cipher id %d", ErrUnknownCipher, id)
	}
}

// DeriveKey derives a codec key from a recovered secret with HKDF-SHA256.
// The info string separates keys derived from the same secret.
func DeriveKey(secret field.Element, info string) ([]byte, error) {
	if secret == nil {
		return nil, errors.New("nil secret")
	}
	ikm := secret.Bytes()
	defer wipeBytes(ikm)

	key := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, ikm, []byte(secret.Field().Name()), []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Codec encrypts and decrypts buffers and streams under one key.
type Codec struct {
	cipher Cipher
	aead   cipher.AEAD
}

// New creates a codec for the cipher. The key must be KeySize bytes.
func New(c Cipher, key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: %d bytes (must be %d bytes)", len(key), KeySize)
	}

	aead, err := newAEAD(c, key)
	if err != nil {
		return nil, err
	}
	return &Codec{cipher: c, aead: aead}, nil
}

func newAEAD(c Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return aead, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, c)
	}
}

func (c *Codec) Cipher() Cipher { return c.cipher }

// Overhead is the number of bytes Encrypt adds to a plaintext.
func (c *Codec) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

// Encrypt seals plaintext under a random nonce. The output is nonce||sealed.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	return c.Seal(plaintext, nil)
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	return c.Open(ciphertext, nil)
}

// Seal is Encrypt with additional authenticated data.
func (c *Codec) Seal(plaintext, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(out, out[:nonceSize], plaintext, aad), nil
}

// Open is Decrypt with additional authenticated data.
func (c *Codec) Open(ciphertext, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(ciphertext))
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
