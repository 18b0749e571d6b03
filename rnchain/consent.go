package rnchain

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

const (
	consentDomain = "threshold-curator-kms/consent/v1"

	// NonceSize is the length of a consent nonce.
	NonceSize = 16
)

// Consent is the data subject's authorisation of a single recovery. It is
// bound to one chain and epoch, and its nonce is accepted only once.
type Consent struct {
	ChainID   string `json:"chain_id"`
	Epoch     uint64 `json:"epoch"`
	Nonce     []byte `json:"nonce"`
	Signature []byte `json:"signature"`
}

// NewConsent signs a consent for chainID and epoch with a fresh nonce.
func NewConsent(owner ed25519.PrivateKey, chainID string, epoch uint64) (Consent, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Consent{}, fmt.Errorf("failed to generate consent nonce: %w", err)
	}
	c := Consent{ChainID: chainID, Epoch: epoch, Nonce: nonce}
	c.Signature = ed25519.Sign(owner, c.message())
	return c, nil
}

func (c Consent) message() []byte {
	h := sha256.New()
	h.Write([]byte(consentDomain))
	writeString(h, c.ChainID)
	writeUint64(h, c.Epoch)
	writeBytes(h, c.Nonce)
	return h.Sum(nil)
}

func (c Consent) verify(owner ed25519.PublicKey) bool {
	return len(c.Nonce) == NonceSize && ed25519.Verify(owner, c.message(), c.Signature)
}
