package rnchain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// LoadLink fetches an archived link record and checks its hash.
func LoadLink(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*Link, error) {
	data, err := backend.Fetch(ctx, id, interfaces.LinkRecordType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch link record %s: %w", id, err)
	}
	return UnmarshalLink(data)
}

// LoadAuditEntry fetches an archived audit entry and checks its hash.
func LoadAuditEntry(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*AuditEntry, error) {
	data, err := backend.Fetch(ctx, id, interfaces.AuditType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit entry %s: %w", id, err)
	}

	var entry AuditEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode audit entry: %w", err)
	}
	if entry.ComputeHash() != entry.Hash {
		return nil, fmt.Errorf("%w: audit entry %s", interfaces.ErrChainBroken, entry.ID)
	}
	return &entry, nil
}

func marshalAudit(entry AuditEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return data, nil
}
