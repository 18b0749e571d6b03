package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/threshold-curator-kms/api"
	"github.com/ruteri/threshold-curator-kms/curator"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

var _ interfaces.Custodian = (*CuratorClient)(nil)

// CuratorClient talks to a curator served by curatorapi. It implements
// interfaces.Custodian, so remote curators can be handed to a chain or an
// alpha coordinator like local ones.
type CuratorClient struct {
	baseURL    string
	field      field.Field
	httpClient *http.Client
}

// NewCuratorClient creates a client for the curator at baseURL whose shares
// live in f. The request timeout defaults to 30 seconds.
func NewCuratorClient(baseURL string, f field.Field, timeout ...time.Duration) *CuratorClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &CuratorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		field:   f,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// ID returns the curator's base URL.
func (c *CuratorClient) ID() string { return c.baseURL }

func (c *CuratorClient) Status(ctx context.Context) (*curator.Status, error) {
	var status curator.Status
	if err := c.do(ctx, http.MethodGet, "/curator/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *CuratorClient) Ready(ctx context.Context, chainID string, epoch uint64) (int, error) {
	var resp api.ReadyResponse
	if err := c.do(ctx, http.MethodPost, "/curator/ready", api.ReadyRequest{ChainID: chainID, Epoch: epoch}, &resp); err != nil {
		return 0, err
	}
	return resp.Index, nil
}

func (c *CuratorClient) Contribute(ctx context.Context, req interfaces.ContributionRequest) (interfaces.Partial, error) {
	var resp api.PartialResponse
	if err := c.do(ctx, http.MethodPost, "/curator/partial", api.NewPartialRequest(req), &resp); err != nil {
		return interfaces.Partial{}, err
	}

	partial, err := resp.Decode(c.field)
	if err != nil {
		return interfaces.Partial{}, fmt.Errorf("could not parse partial from %s: %w", c.baseURL, err)
	}
	return partial, nil
}

func (c *CuratorClient) Accept(ctx context.Context, deal interfaces.Deal) error {
	return c.do(ctx, http.MethodPost, "/curator/deal", api.NewDealRequest(deal), nil)
}

// SetAvailable switches the remote curator on or off for recoveries.
func (c *CuratorClient) SetAvailable(ctx context.Context, available bool) error {
	return c.do(ctx, http.MethodPost, "/curator/availability", api.AvailabilityRequest{Available: available}, nil)
}

// do sends a JSON request and decodes the JSON response into out when out
// is not nil. Failed responses are mapped back to sentinel errors through
// api.ErrorCodeHeader.
func (c *CuratorClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not reach %s: %v", interfaces.ErrCuratorUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read curator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if sentinel := api.CodeError(resp.Header.Get(api.ErrorCodeHeader)); sentinel != nil {
			return fmt.Errorf("%w: curator %s returned %d: %s", sentinel, c.baseURL, resp.StatusCode, msg)
		}
		return fmt.Errorf("curator %s returned %d: %s", c.baseURL, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse curator response: %w", err)
	}
	return nil
}
