package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, backend.Available(ctx))

	data := []byte("ciphertext bytes")
	id, err := backend.Store(ctx, data, interfaces.CiphertextType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)

	got, err := backend.Fetch(ctx, id, interfaces.CiphertextType)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = backend.Fetch(ctx, id, interfaces.AuditType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound, "content types are separate namespaces")

	_, err = os.Stat(filepath.Join(dir, "ciphertext", id.String()))
	assert.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "ciphertext"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should remain")
}

func TestFileBackendUnavailable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.False(t, backend.Available(context.Background()))
}
