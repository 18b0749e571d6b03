package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ruteri/threshold-curator-kms/api"
	"github.com/ruteri/threshold-curator-kms/api/clients"
	"github.com/ruteri/threshold-curator-kms/api/curatorapi"
	"github.com/ruteri/threshold-curator-kms/curator"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/httpserver"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// Transport selects how a chain reaches its curators.
type Transport string

const (
	// TransportLocal calls curators in-process.
	TransportLocal Transport = "local"

	// TransportHTTP serves every curator on its own loopback listener and
	// reaches it through clients.CuratorClient.
	TransportHTTP Transport = "http"
)

func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportLocal, "":
		return TransportLocal, nil
	case TransportHTTP:
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

// Committee is a set of curators together with the custodians a chain uses
// to reach them.
type Committee struct {
	Curators   []*curator.Curator
	Custodians []interfaces.Custodian

	servers []*http.Server
	remote  []*clients.CuratorClient
}

// NewCommittee creates n curators over f reachable through transport.
func NewCommittee(n int, f field.Field, transport Transport, log *slog.Logger) (*Committee, error) {
	committee := &Committee{
		Curators:   curator.NewCommittee(n, f, log),
		Custodians: make([]interfaces.Custodian, n),
	}

	switch transport {
	case TransportLocal, "":
		for i, c := range committee.Curators {
			committee.Custodians[i] = c
		}
		return committee, nil
	case TransportHTTP:
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}

	requestLog := log
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		requestLog = slog.New(slog.DiscardHandler)
	}

	for i, c := range committee.Curators {
		srv, err := httpserver.New(&api.HTTPServerConfig{Log: requestLog}, curatorapi.NewHandler(c, log))
		if err != nil {
			committee.Close()
			return nil, err
		}

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			committee.Close()
			return nil, fmt.Errorf("could not listen for curator %s: %w", c.ID(), err)
		}

		hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Curator listener failed", "curator", c.ID(), "err", err)
			}
		}()
		committee.servers = append(committee.servers, hs)
		committee.Custodians[i] = clients.NewCuratorClient("http://"+ln.Addr().String(), f)
	}
	return committee, nil
}

// NewRemoteCommittee reaches already running curators, e.g. the ones
// found by clients.ResolveCurators.
func NewRemoteCommittee(urls []string, f field.Field) *Committee {
	committee := &Committee{Custodians: make([]interfaces.Custodian, len(urls))}
	for i, url := range urls {
		client := clients.NewCuratorClient(url, f)
		committee.remote = append(committee.remote, client)
		committee.Custodians[i] = client
	}
	return committee
}

// SetUnavailable takes the first k curators offline and brings the rest
// back.
func (c *Committee) SetUnavailable(ctx context.Context, k int) error {
	for i, cur := range c.Curators {
		cur.SetAvailable(i >= k)
	}
	for i, client := range c.remote {
		if err := client.SetAvailable(ctx, i >= k); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the listeners of an HTTP committee.
func (c *Committee) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, hs := range c.servers {
		hs.Shutdown(ctx)
	}
	c.servers = nil
}
