package rnchain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"slices"
	"time"

	"github.com/ruteri/threshold-curator-kms/interfaces"
)

const (
	linkDomain  = "threshold-curator-kms/link/v1"
	auditDomain = "threshold-curator-kms/audit/v1"
)

// Hash is a SHA-256 digest encoded as hex in JSON.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("invalid hash length %d", len(text))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// LinkParams are the public sharing parameters of a link.
type LinkParams struct {
	Field     string `json:"field"`
	Threshold int    `json:"threshold"`
	N         int    `json:"n"`
	Rotation  string `json:"rotation"`
}

// Link is one create cycle of the chain. It holds only public data: the
// sharing parameters, the commitments to the sharing polynomial and, in
// linked rotation, the previous epoch's secret sealed under this epoch's key.
type Link struct {
	ChainID     string     `json:"chain_id"`
	Epoch       uint64     `json:"epoch"`
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id,omitempty"`
	DatasetID   string     `json:"dataset_id,omitempty"`
	Params      LinkParams `json:"params"`
	Commitments [][]byte   `json:"commitments,omitempty"`
	Sealed      []byte     `json:"sealed,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	PrevHash    Hash       `json:"prev_hash"`
	Hash        Hash       `json:"hash"`
	Signature   []byte     `json:"signature,omitempty"`
}

// ComputeHash hashes every field of the link except Hash and Signature.
func (l *Link) ComputeHash() Hash {
	h := sha256.New()
	h.Write([]byte(linkDomain))
	writeString(h, l.ChainID)
	h.Write(l.PrevHash[:])
	writeUint64(h, l.Epoch)
	writeString(h, l.ID)
	writeString(h, l.SubjectID)
	writeString(h, l.DatasetID)
	writeString(h, l.Params.Field)
	writeUint64(h, uint64(l.Params.Threshold))
	writeUint64(h, uint64(l.Params.N))
	writeString(h, l.Params.Rotation)
	writeUint64(h, uint64(len(l.Commitments)))
	for _, c := range l.Commitments {
		writeBytes(h, c)
	}
	writeBytes(h, l.Sealed)
	writeUint64(h, uint64(l.CreatedAt.UnixNano()))

	var out Hash
	h.Sum(out[:0])
	return out
}

// Verify checks the link's own hash and, when owner is set, its signature.
func (l *Link) Verify(owner ed25519.PublicKey) error {
	if l.ComputeHash() != l.Hash {
		return fmt.Errorf("%w: hash mismatch at epoch %d", interfaces.ErrChainBroken, l.Epoch)
	}
	if owner != nil && !ed25519.Verify(owner, l.Hash[:], l.Signature) {
		return fmt.Errorf("%w: bad owner signature at epoch %d", interfaces.ErrChainBroken, l.Epoch)
	}
	return nil
}

func (l *Link) clone() *Link {
	cp := *l
	cp.Commitments = make([][]byte, len(l.Commitments))
	for i, c := range l.Commitments {
		cp.Commitments[i] = slices.Clone(c)
	}
	cp.Sealed = slices.Clone(l.Sealed)
	cp.Signature = slices.Clone(l.Signature)
	return &cp
}

// MarshalLink encodes a link as a JSON record for archival.
func MarshalLink(l *Link) ([]byte, error) {
	return json.Marshal(l)
}

// UnmarshalLink decodes an archived link record and checks its hash.
func UnmarshalLink(data []byte) (*Link, error) {
	var l Link
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode link record: %w", err)
	}
	if err := l.Verify(nil); err != nil {
		return nil, err
	}
	return &l, nil
}

// AuditEntry records an access that bypassed data subject consent.
type AuditEntry struct {
	ID        string    `json:"id"`
	ChainID   string    `json:"chain_id"`
	Epoch     uint64    `json:"epoch"`
	Action    string    `json:"action"`
	Requester string    `json:"requester"`
	Reason    string    `json:"reason"`
	Time      time.Time `json:"time"`
	PrevHash  Hash      `json:"prev_hash"`
	Hash      Hash      `json:"hash"`
}

// Audit actions.
const (
	ActionBreakGlass   = "break_glass"
	ActionEmergencyKit = "emergency_kit"
)

func (e *AuditEntry) ComputeHash() Hash {
	h := sha256.New()
	h.Write([]byte(auditDomain))
	h.Write(e.PrevHash[:])
	writeString(h, e.ID)
	writeString(h, e.ChainID)
	writeUint64(h, e.Epoch)
	writeString(h, e.Action)
	writeString(h, e.Requester)
	writeString(h, e.Reason)
	writeUint64(h, uint64(e.Time.UnixNano()))

	var out Hash
	h.Sum(out[:0])
	return out
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeBytes(h hash.Hash, b []byte) {
	writeUint64(h, uint64(len(b)))
	h.Write(b)
}

func writeString(h hash.Hash, s string) {
	writeBytes(h, []byte(s))
}
