package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/threshold-curator-kms/alpha"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
)

// ErrorCodeHeader carries a machine readable error code on failed responses.
const ErrorCodeHeader = "X-Curator-Error"

// Error codes sent in ErrorCodeHeader.
const (
	CodeUnavailable      = "curator_unavailable"
	CodeEpochNotFound    = "epoch_not_found"
	CodeInconsistent     = "inconsistent_shares"
	CodeInvalidThreshold = "invalid_threshold"
	CodeNotAGroup        = "not_a_group"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{interfaces.ErrCuratorUnavailable, CodeUnavailable, http.StatusServiceUnavailable},
	{interfaces.ErrEpochNotFound, CodeEpochNotFound, http.StatusNotFound},
	{interfaces.ErrInconsistentShares, CodeInconsistent, http.StatusConflict},
	{interfaces.ErrInvalidThreshold, CodeInvalidThreshold, http.StatusBadRequest},
	{alpha.ErrNotAGroup, CodeNotAGroup, http.StatusBadRequest},
	{field.ErrNonCanonical, CodeBadRequest, http.StatusBadRequest},
}

// ErrorStatus maps an error to its HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// CodeError returns the sentinel error for an error code, or nil for codes
// without one.
func CodeError(code string) error {
	for _, e := range errorCodes {
		if e.code == code && e.code != CodeBadRequest {
			return e.err
		}
	}
	return nil
}

type ReadyRequest struct {
	ChainID string `json:"chain_id"`
	Epoch   uint64 `json:"epoch"`
}

type ReadyResponse struct {
	Index int `json:"index"`
}

// AvailabilityRequest toggles whether a curator takes part in recoveries.
type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// PartialRequest is the wire form of interfaces.ContributionRequest.
type PartialRequest struct {
	Session string `json:"session"`
	ChainID string `json:"chain_id"`
	Epoch   uint64 `json:"epoch"`
	Quorum  []int  `json:"quorum"`
	Point   []byte `json:"point,omitempty"`
}

func NewPartialRequest(req interfaces.ContributionRequest) PartialRequest {
	out := PartialRequest{
		Session: req.Session,
		ChainID: req.ChainID,
		Epoch:   req.Epoch,
		Quorum:  req.Quorum,
	}
	if req.Point != nil {
		out.Point = req.Point.Bytes()
	}
	return out
}

// Decode parses the request for a curator working over f.
func (r PartialRequest) Decode(f field.Field) (interfaces.ContributionRequest, error) {
	req := interfaces.ContributionRequest{
		Session: r.Session,
		ChainID: r.ChainID,
		Epoch:   r.Epoch,
		Quorum:  r.Quorum,
	}
	if len(r.Point) == 0 {
		return req, nil
	}

	g, ok := field.AsGroup(f)
	if !ok {
		return req, fmt.Errorf("%w: exponent request over field %s", alpha.ErrNotAGroup, f.Name())
	}
	p, err := g.PointFromBytes(r.Point)
	if err != nil {
		return req, err
	}
	req.Point = p
	return req, nil
}

// PartialResponse is the wire form of interfaces.Partial.
type PartialResponse struct {
	Session string `json:"session"`
	ChainID string `json:"chain_id"`
	Epoch   uint64 `json:"epoch"`
	Index   int    `json:"index"`
	Value   []byte `json:"value,omitempty"`
	Point   []byte `json:"point,omitempty"`
}

func NewPartialResponse(p interfaces.Partial) PartialResponse {
	out := PartialResponse{
		Session: p.Session,
		ChainID: p.ChainID,
		Epoch:   p.Epoch,
		Index:   p.Index,
	}
	if p.Value != nil {
		out.Value = p.Value.Bytes()
	}
	if p.Point != nil {
		out.Point = p.Point.Bytes()
	}
	return out
}

// Decode parses the partial. Exactly one of Value or Point must be set.
func (r PartialResponse) Decode(f field.Field) (interfaces.Partial, error) {
	p := interfaces.Partial{
		Session: r.Session,
		ChainID: r.ChainID,
		Epoch:   r.Epoch,
		Index:   r.Index,
	}

	switch {
	case len(r.Value) > 0 && len(r.Point) == 0:
		v, err := f.FromBytes(r.Value)
		if err != nil {
			return p, err
		}
		p.Value = v
	case len(r.Point) > 0 && len(r.Value) == 0:
		g, ok := field.AsGroup(f)
		if !ok {
			return p, fmt.Errorf("%w: point partial over field %s", alpha.ErrNotAGroup, f.Name())
		}
		pt, err := g.PointFromBytes(r.Point)
		if err != nil {
			return p, err
		}
		p.Point = pt
	default:
		return p, fmt.Errorf("%w: partial %d carries neither or both of value and point", interfaces.ErrInconsistentShares, r.Index)
	}
	return p, nil
}

// DealRequest is the wire form of interfaces.Deal.
type DealRequest struct {
	ChainID     string         `json:"chain_id"`
	Epoch       uint64         `json:"epoch"`
	Index       int            `json:"index"`
	Value       []byte         `json:"value"`
	Threshold   int            `json:"threshold"`
	Commitments [][]byte       `json:"commitments,omitempty"`
	PairSeeds   map[int][]byte `json:"pair_seeds"`
}

func NewDealRequest(deal interfaces.Deal) DealRequest {
	out := DealRequest{
		ChainID:   deal.ChainID,
		Epoch:     deal.Epoch,
		Index:     deal.Share.Index,
		Threshold: deal.Threshold,
		PairSeeds: deal.PairSeeds,
	}
	if deal.Share.Value != nil {
		out.Value = deal.Share.Value.Bytes()
	}
	for _, c := range deal.Commitments {
		out.Commitments = append(out.Commitments, c.Bytes())
	}
	return out
}

// Decode parses the deal for a curator working over f.
func (r DealRequest) Decode(f field.Field) (interfaces.Deal, error) {
	value, err := f.FromBytes(r.Value)
	if err != nil {
		return interfaces.Deal{}, fmt.Errorf("share value: %w", err)
	}

	deal := interfaces.Deal{
		ChainID:   r.ChainID,
		Epoch:     r.Epoch,
		Share:     interfaces.Share{Epoch: r.Epoch, Index: r.Index, Value: value},
		Threshold: r.Threshold,
		PairSeeds: r.PairSeeds,
	}
	if len(r.Commitments) == 0 {
		return deal, nil
	}

	g, ok := field.AsGroup(f)
	if !ok {
		return deal, fmt.Errorf("%w: commitments over field %s", alpha.ErrNotAGroup, f.Name())
	}
	for i, raw := range r.Commitments {
		c, err := g.PointFromBytes(raw)
		if err != nil {
			return deal, fmt.Errorf("commitment %d: %w", i, err)
		}
		deal.Commitments = append(deal.Commitments, c)
	}
	return deal, nil
}
