package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// ErrReplicationFailed is returned by Store when fewer backends than the
// configured minimum accepted the data.
var ErrReplicationFailed = errors.New("replication below minimum")

// MultiStorageBackend replicates content across several backends, typically
// one per curator. Stores go to every available backend; fetches fall back
// through the backends in order and only return data whose hash matches the
// requested content ID, so a single misbehaving curator store cannot serve
// altered ciphertext.
type MultiStorageBackend struct {
	backends    []interfaces.StorageBackend
	minReplicas int
	log         *slog.Logger
}

// NewMultiStorageBackend creates a replicating backend requiring a single
// successful store.
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends:    backends,
		minReplicas: 1,
		log:         logger,
	}
}

// WithMinReplicas sets how many backends must accept a Store for it to succeed.
func (m *MultiStorageBackend) WithMinReplicas(n int) *MultiStorageBackend {
	if n < 1 {
		n = 1
	}
	m.minReplicas = n
	return m
}

// Fetch returns the first copy that hashes to id.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs []error
	contentIDStr := fmt.Sprintf("%x", id[:8])

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr))
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to fetch from backend",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr),
				"err", err)
			continue
		}

		if interfaces.ComputeID(data) != id {
			errs = append(errs, fmt.Errorf("%s: content hash mismatch", backend.Name()))
			m.log.Warn("Backend returned altered content",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr))
			continue
		}

		m.log.Debug("Fetched content",
			slog.String("backend_name", backend.Name()),
			slog.String("content_id", contentIDStr),
			slog.Duration("duration", time.Since(start)))
		return data, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backend reachable for %s", interfaces.ErrBackendUnavailable, contentIDStr)
	}
	return nil, fmt.Errorf("all backends failed to fetch %s: %w", contentIDStr, errors.Join(errs...))
}

// Store saves data to all available backends.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)
	replicas := 0
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		storedID, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		if storedID != id {
			errs = append(errs, fmt.Errorf("%s: returned content ID %s", backend.Name(), storedID))
			continue
		}
		replicas++
	}

	m.log.Info("Replicated content",
		slog.String("content_id", id.String()),
		slog.String("content_type", contentType.String()),
		slog.Int("replicas", replicas),
		slog.Int("backends", len(m.backends)),
		slog.Duration("duration", time.Since(start)))

	if replicas < m.minReplicas {
		cause := errors.Join(errs...)
		if cause == nil {
			cause = interfaces.ErrBackendUnavailable
		}
		return interfaces.ContentID{}, fmt.Errorf("%w: stored %d of required %d: %w", ErrReplicationFailed, replicas, m.minReplicas, cause)
	}

	return id, nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI lists the locations of all wrapped backends.
func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
