package curatorapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/threshold-curator-kms/api"
	"github.com/ruteri/threshold-curator-kms/curator"
)

// maxBodySize bounds request bodies; deals of large committees are the
// biggest messages.
const maxBodySize = 1 << 20

// Handler serves one curator over HTTP. Shares only ever enter through
// /curator/deal; nothing but partial contributions and status leave.
type Handler struct {
	curator *curator.Curator
	log     *slog.Logger
}

func NewHandler(c *curator.Curator, log *slog.Logger) *Handler {
	return &Handler{
		curator: c,
		log:     log,
	}
}

// RegisterRoutes mounts the curator endpoints:
//   - GET  /curator/status
//   - POST /curator/ready
//   - POST /curator/partial
//   - POST /curator/deal
//   - POST /curator/availability
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/curator/status", h.HandleStatus)
	r.Post("/curator/ready", h.HandleReady)
	r.Post("/curator/partial", h.HandlePartial)
	r.Post("/curator/deal", h.HandleDeal)
	r.Post("/curator/availability", h.HandleAvailability)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.curator.Status())
}

// HandleReady reports the share index held for the requested chain link.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	var req api.ReadyRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	index, err := h.curator.Ready(r.Context(), req.ChainID, req.Epoch)
	if err != nil {
		h.writeError(w, fmt.Errorf("not ready for epoch %d of chain %s: %w", req.Epoch, req.ChainID, err))
		return
	}
	h.writeJSON(w, api.ReadyResponse{Index: index})
}

// HandlePartial computes the curator's contribution to an alpha session.
func (h *Handler) HandlePartial(w http.ResponseWriter, r *http.Request) {
	var body api.PartialRequest
	if !h.readJSON(w, r, &body) {
		return
	}

	req, err := body.Decode(h.curator.Field())
	if err != nil {
		h.writeError(w, fmt.Errorf("invalid partial request: %w", err))
		return
	}

	partial, err := h.curator.Contribute(r.Context(), req)
	if err != nil {
		h.log.Debug("Contribution refused", "session", req.Session, "chain", req.ChainID, "epoch", req.Epoch, "err", err)
		h.writeError(w, fmt.Errorf("could not contribute: %w", err))
		return
	}
	h.writeJSON(w, api.NewPartialResponse(partial))
}

// HandleDeal stores a share dealt by a chain.
func (h *Handler) HandleDeal(w http.ResponseWriter, r *http.Request) {
	var body api.DealRequest
	if !h.readJSON(w, r, &body) {
		return
	}

	deal, err := body.Decode(h.curator.Field())
	if err != nil {
		h.writeError(w, fmt.Errorf("invalid deal: %w", err))
		return
	}

	if err := h.curator.Accept(r.Context(), deal); err != nil {
		h.log.Warn("Deal rejected", "chain", deal.ChainID, "epoch", deal.Epoch, "index", deal.Share.Index, "err", err)
		h.writeError(w, fmt.Errorf("deal rejected: %w", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	var req api.AvailabilityRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	h.curator.SetAvailable(req.Available)
	h.log.Info("Curator availability changed", "available", req.Available)
	h.writeJSON(w, h.curator.Status())
}

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		w.Header().Set(api.ErrorCodeHeader, api.CodeBadRequest)
		http.Error(w, fmt.Errorf("failed to read request body: %w", err).Error(), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		w.Header().Set(api.ErrorCodeHeader, api.CodeBadRequest)
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.writeError(w, fmt.Errorf("failed to encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := api.ErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	}
	w.Header().Set(api.ErrorCodeHeader, code)
	http.Error(w, err.Error(), status)
}
