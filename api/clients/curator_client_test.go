package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/threshold-curator-kms/api/curatorapi"
	"github.com/ruteri/threshold-curator-kms/curator"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/rnchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serveCommittee starts n curators behind httptest servers and returns
// clients for them.
func serveCommittee(t *testing.T, n int, f field.Field) ([]*curator.Curator, []*CuratorClient) {
	committee := curator.NewCommittee(n, f, discardLogger())
	clients := make([]*CuratorClient, n)
	for i, c := range committee {
		r := chi.NewRouter()
		curatorapi.NewHandler(c, discardLogger()).RegisterRoutes(r)
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)
		clients[i] = NewCuratorClient(srv.URL+"/", f, 5*time.Second)
	}
	return committee, clients
}

func TestChainOverHTTP(t *testing.T) {
	ctx := context.Background()
	f := field.Ed25519()
	_, clients := serveCommittee(t, 5, f)

	custodians := make([]interfaces.Custodian, len(clients))
	for i, c := range clients {
		custodians[i] = c
	}
	chain, err := rnchain.New(rnchain.Config{
		Field:        f,
		Threshold:    2,
		RotationMode: interfaces.RotationReshare,
		Log:          discardLogger(),
	}, custodians)
	require.NoError(t, err)

	_, err = chain.Create(ctx)
	require.NoError(t, err, "dealing over HTTP should succeed")
	_, err = chain.Create(ctx)
	require.NoError(t, err, "resharing recovers the previous secret over HTTP")

	first, err := chain.Recover(ctx, 0)
	require.NoError(t, err)
	second, err := chain.Recover(ctx, 1)
	require.NoError(t, err)
	assert.True(t, first.Equal(second), "reshare keeps the secret")

	// two of five curators offline still leaves a quorum of t=2
	require.NoError(t, clients[0].SetAvailable(ctx, false))
	require.NoError(t, clients[3].SetAvailable(ctx, false))
	again, err := chain.Recover(ctx, 1)
	require.NoError(t, err)
	assert.True(t, again.Equal(second))

	// four offline does not
	require.NoError(t, clients[1].SetAvailable(ctx, false))
	require.NoError(t, clients[2].SetAvailable(ctx, false))
	_, err = chain.Recover(ctx, 1)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestChainsShareCommitteeOverHTTP(t *testing.T) {
	ctx := context.Background()
	f := field.Mersenne127()
	committee, clients := serveCommittee(t, 5, f)

	custodians := make([]interfaces.Custodian, len(clients))
	for i, c := range clients {
		custodians[i] = c
	}
	newChain := func() *rnchain.Chain {
		chain, err := rnchain.New(rnchain.Config{Field: f, Threshold: 2, Log: discardLogger()}, custodians)
		require.NoError(t, err)
		return chain
	}
	chainA, chainB := newChain(), newChain()

	_, err := chainA.Create(ctx)
	require.NoError(t, err)
	before, err := chainA.Recover(ctx, 0)
	require.NoError(t, err)

	_, err = chainB.Create(ctx)
	require.NoError(t, err)
	secretB, err := chainB.Recover(ctx, 0)
	require.NoError(t, err)

	after, err := chainA.Recover(ctx, 0)
	require.NoError(t, err)
	assert.True(t, after.Equal(before), "chain B's epoch 0 must not replace chain A's")
	assert.False(t, after.Equal(secretB))

	status := committee[0].Status()
	assert.Len(t, status.Chains, 2)
	assert.Equal(t, []uint64{0}, status.Chains[chainA.ID()])
	assert.Equal(t, []uint64{0}, status.Chains[chainB.ID()])
}

func TestClientMapsErrors(t *testing.T) {
	ctx := context.Background()
	f := field.Ed25519()
	committee, clients := serveCommittee(t, 1, f)

	_, err := clients[0].Ready(ctx, "chain", 3)
	assert.ErrorIs(t, err, interfaces.ErrEpochNotFound)

	committee[0].SetAvailable(false)
	_, err = clients[0].Ready(ctx, "chain", 3)
	assert.ErrorIs(t, err, interfaces.ErrCuratorUnavailable)

	_, err = clients[0].Contribute(ctx, interfaces.ContributionRequest{Session: "s", Quorum: []int{1}})
	assert.ErrorIs(t, err, interfaces.ErrCuratorUnavailable)

	status, err := clients[0].Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "curator-1", status.ID)
	assert.False(t, status.Available)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(chi.NewRouter())
	url := srv.URL
	srv.Close()

	client := NewCuratorClient(url, field.Ed25519(), time.Second)
	_, err := client.Ready(context.Background(), "chain", 0)
	assert.ErrorIs(t, err, interfaces.ErrCuratorUnavailable)
	assert.Equal(t, url, client.ID())
}
