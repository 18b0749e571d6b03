package rnchain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/threshold-curator-kms/codec"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

const dataDomain = "threshold-curator-kms/data/v1"

// ErrUnknownRecord is returned for a data record this chain did not issue.
var ErrUnknownRecord = errors.New("data record not on this chain")

// DataRecord binds a stored ciphertext to the link whose data key protects
// it and to the writer whose signature the ciphertext carries. Records form
// their own hash-linked sequence next to the links.
type DataRecord struct {
	ID        string               `json:"id"`
	ChainID   string               `json:"chain_id"`
	Epoch     uint64               `json:"epoch"`
	LinkHash  Hash                 `json:"link_hash"`
	Content   interfaces.ContentID `json:"content"`
	Location  string               `json:"location,omitempty"`
	Writer    ed25519.PublicKey    `json:"writer"`
	CreatedAt time.Time            `json:"created_at"`
	PrevHash  Hash                 `json:"prev_hash"`
	Hash      Hash                 `json:"hash"`
	Signature []byte               `json:"signature,omitempty"`
}

func (r *DataRecord) ComputeHash() Hash {
	h := sha256.New()
	h.Write([]byte(dataDomain))
	h.Write(r.PrevHash[:])
	writeString(h, r.ID)
	writeString(h, r.ChainID)
	writeUint64(h, r.Epoch)
	h.Write(r.LinkHash[:])
	h.Write(r.Content[:])
	writeString(h, r.Location)
	writeBytes(h, r.Writer)
	writeUint64(h, uint64(r.CreatedAt.UnixNano()))

	var out Hash
	h.Sum(out[:0])
	return out
}

// Verify checks the record's own hash and, when owner is set, its signature.
func (r *DataRecord) Verify(owner ed25519.PublicKey) error {
	if r.ComputeHash() != r.Hash {
		return fmt.Errorf("%w: data record %s hash mismatch", interfaces.ErrChainBroken, r.ID)
	}
	if owner != nil && !ed25519.Verify(owner, r.Hash[:], r.Signature) {
		return fmt.Errorf("%w: bad owner signature on data record %s", interfaces.ErrChainBroken, r.ID)
	}
	return nil
}

func (r *DataRecord) clone() *DataRecord {
	cp := *r
	cp.Writer = slices.Clone(r.Writer)
	cp.Signature = slices.Clone(r.Signature)
	return &cp
}

// LoadDataRecord fetches an archived data record and checks its hash.
func LoadDataRecord(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*DataRecord, error) {
	data, err := backend.Fetch(ctx, id, interfaces.DataRefType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data record %s: %w", id, err)
	}
	var r DataRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode data record: %w", err)
	}
	if err := r.Verify(nil); err != nil {
		return nil, err
	}
	return &r, nil
}

// AttachData records that content, stored at location, holds data of epoch
// signed by writer. The record is archived when the chain has an archive.
func (c *Chain) AttachData(ctx context.Context, epoch uint64, content interfaces.ContentID, location string, writer ed25519.PublicKey) (*DataRecord, error) {
	if content.IsZero() {
		return nil, errors.New("empty content id")
	}
	if len(writer) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid writer key size %d", len(writer))
	}
	link, err := c.link(epoch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record := &DataRecord{
		ID:        uuid.NewString(),
		ChainID:   c.id,
		Epoch:     epoch,
		LinkHash:  link.Hash,
		Content:   content,
		Location:  location,
		Writer:    slices.Clone(writer),
		CreatedAt: time.Now().UTC(),
	}
	if n := len(c.data); n > 0 {
		record.PrevHash = c.data[n-1].Hash
	}
	record.Hash = record.ComputeHash()
	if c.cfg.Owner != nil {
		record.Signature = ed25519.Sign(c.cfg.Owner, record.Hash[:])
	}

	if c.cfg.Archive != nil {
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode data record: %w", err)
		}
		id, err := c.cfg.Archive.Store(ctx, encoded, interfaces.DataRefType)
		if err != nil {
			return nil, fmt.Errorf("failed to archive data record: %w", err)
		}
		c.dataArchived[record.ID] = id
	}
	c.data = append(c.data, record)

	c.log.Info("Attached data",
		slog.Uint64("epoch", epoch),
		slog.String("record", record.ID),
		slog.String("content", content.String()),
		slog.String("location", location))
	return record.clone(), nil
}

// DataRecords returns copies of the data records of epoch, oldest first.
func (c *Chain) DataRecords(epoch uint64) []*DataRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*DataRecord
	for _, r := range c.data {
		if r.Epoch == epoch {
			out = append(out, r.clone())
		}
	}
	return out
}

// ArchivedData returns the content ID of the archived copy of a data record.
func (c *Chain) ArchivedData(recordID string) (interfaces.ContentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.dataArchived[recordID]
	return id, ok
}

// SealData encrypts r under the data key of epoch, signs the ciphertext with
// writer, stores it and attaches it to the chain.
func (c *Chain) SealData(ctx context.Context, epoch uint64, r io.Reader, store interfaces.StorageBackend, writer ed25519.PrivateKey, consent *Consent) (*DataRecord, error) {
	if len(writer) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid writer key size %d", len(writer))
	}
	sealer, err := c.dataCodec(ctx, epoch, consent)
	if err != nil {
		return nil, err
	}

	var stream bytes.Buffer
	if _, err := sealer.EncryptSignedStream(r, &stream, writer); err != nil {
		return nil, err
	}
	id, err := store.Store(ctx, stream.Bytes(), interfaces.CiphertextType)
	if err != nil {
		return nil, fmt.Errorf("failed to store ciphertext: %w", err)
	}
	return c.AttachData(ctx, epoch, id, store.LocationURI(), writer.Public().(ed25519.PublicKey))
}

// OpenData fetches the ciphertext of record, checks the writer's signature
// and writes the plaintext to w. Nothing is written unless the whole stream
// authenticates.
func (c *Chain) OpenData(ctx context.Context, record *DataRecord, store interfaces.StorageBackend, w io.Writer, consent *Consent) (int64, error) {
	if err := c.knownRecord(record); err != nil {
		return 0, err
	}
	stream, err := store.Fetch(ctx, record.Content, interfaces.CiphertextType)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ciphertext %s: %w", record.Content, err)
	}
	if interfaces.ComputeID(stream) != record.Content {
		return 0, fmt.Errorf("%w: ciphertext %s does not match its record", interfaces.ErrChainBroken, record.Content)
	}

	opener, err := c.dataCodec(ctx, record.Epoch, consent)
	if err != nil {
		return 0, err
	}
	var plain bytes.Buffer
	if _, err := opener.DecryptSignedStream(bytes.NewReader(stream), &plain, record.Writer); err != nil {
		wipeBytes(plain.Bytes())
		return 0, err
	}
	return plain.WriteTo(w)
}

// knownRecord checks that record is one this chain issued, unmodified.
func (c *Chain) knownRecord(record *DataRecord) error {
	if record == nil || record.ChainID != c.id {
		return ErrUnknownRecord
	}
	if err := record.Verify(nil); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.data {
		if r.ID == record.ID {
			if r.Hash != record.Hash {
				return fmt.Errorf("%w: data record %s was modified", interfaces.ErrChainBroken, record.ID)
			}
			return nil
		}
	}
	return ErrUnknownRecord
}

func (c *Chain) dataCodec(ctx context.Context, epoch uint64, consent *Consent) (*codec.Codec, error) {
	key, err := c.DataKey(ctx, epoch, consent)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(key)
	return codec.New(c.cfg.Cipher, key)
}

// verifyData checks the data record sequence. c.mu must be held.
func (c *Chain) verifyData(owner ed25519.PublicKey) error {
	var prev Hash
	for i, r := range c.data {
		if r.ChainID != c.id || r.PrevHash != prev {
			return fmt.Errorf("%w: data record %d does not extend its predecessor", interfaces.ErrChainBroken, i)
		}
		if r.Epoch >= uint64(len(c.links)) || c.links[r.Epoch].Hash != r.LinkHash {
			return fmt.Errorf("%w: data record %d names an unknown link", interfaces.ErrChainBroken, i)
		}
		if err := r.Verify(owner); err != nil {
			return err
		}
		prev = r.Hash
	}
	return nil
}
