package bench

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/threshold-curator-kms/codec"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/rnchain"
)

// FnConfig parameterizes the codec benchmark.
type FnConfig struct {
	Size   int
	Cipher codec.Cipher

	// Threshold and Field describe the one-link chain the data key is
	// recovered from.
	Threshold int
	Field     field.Field

	// Store, when set, receives the signed ciphertext, which is attached to
	// the chain, fetched back and opened again.
	Store interfaces.StorageBackend

	// Writer signs the stored ciphertext. A fresh key is used when unset.
	Writer ed25519.PrivateKey
	Log    *slog.Logger
}

type FnResult struct {
	Throughput *codec.Throughput

	// StoredID is the content id of the stored ciphertext and Record its
	// entry on the chain, both empty without a store.
	StoredID interfaces.ContentID
	Record   *rnchain.DataRecord
}

// RunFn recovers a data key through a fresh curator committee and measures
// encryption and decryption of a random buffer of Size bytes with it.
func RunFn(ctx context.Context, cfg FnConfig) (*FnResult, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("buffer size %d must be positive", cfg.Size)
	}
	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d must be at least 1", interfaces.ErrInvalidThreshold, cfg.Threshold)
	}
	var err error
	if cfg.Cipher, err = codec.ParseCipher(string(cfg.Cipher)); err != nil {
		return nil, err
	}
	if cfg.Field == nil {
		cfg.Field = field.Ed25519()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	committee, err := NewCommittee(2*cfg.Threshold+1, cfg.Field, TransportLocal, cfg.Log)
	if err != nil {
		return nil, err
	}
	defer committee.Close()

	chain, err := rnchain.New(rnchain.Config{
		Field:     cfg.Field,
		Threshold: cfg.Threshold,
		Cipher:    cfg.Cipher,
		Log:       cfg.Log,
	}, committee.Custodians)
	if err != nil {
		return nil, err
	}
	link, err := chain.Create(ctx)
	if err != nil {
		return nil, err
	}

	key, err := chain.DataKey(ctx, link.Epoch, nil)
	if err != nil {
		return nil, err
	}
	c, err := codec.New(cfg.Cipher, key)
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return nil, err
	}

	throughput, err := codec.MeasureThroughput(ctx, c, cfg.Size)
	if err != nil {
		return nil, err
	}
	result := &FnResult{Throughput: throughput}
	if cfg.Store == nil {
		return result, nil
	}

	writer := cfg.Writer
	if writer == nil {
		if _, writer, err = ed25519.GenerateKey(nil); err != nil {
			return nil, err
		}
	}
	signed, err := codec.SignStream(throughput.Ciphertext, writer)
	if err != nil {
		return nil, err
	}
	id, err := cfg.Store.Store(ctx, signed, interfaces.CiphertextType)
	if err != nil {
		return nil, fmt.Errorf("failed to store ciphertext: %w", err)
	}
	record, err := chain.AttachData(ctx, link.Epoch, id, cfg.Store.LocationURI(), writer.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	n, err := chain.OpenData(ctx, record, cfg.Store, io.Discard, nil)
	if err != nil {
		return nil, fmt.Errorf("stored ciphertext %s does not open: %w", id, err)
	}
	if n != int64(cfg.Size) {
		return nil, fmt.Errorf("%w: stored ciphertext %s decrypts to %d bytes, want %d", codec.ErrRoundTrip, id, n, cfg.Size)
	}

	cfg.Log.Info("Ciphertext stored", "id", id.String(), "record", record.ID, "backend", cfg.Store.Name(), "bytes", len(signed))
	result.StoredID = id
	result.Record = record
	return result, nil
}
