// Package api exposes the auction system's command and query surface over
// JSON HTTP. Handlers decode, delegate to the app layer, and translate error
// categories to status codes; no business rules live here.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/motorlot/motorlot/internal/auction"
	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/bid"
	"github.com/motorlot/motorlot/internal/lot"
	"github.com/motorlot/motorlot/internal/models"
)

// Handler wires the HTTP surface to the app layer.
type Handler struct {
	auctions *auction.App
	lots     *lot.App
	bids     *bid.Ledger
}

// NewHandler creates a new API handler.
func NewHandler(auctions *auction.App, lots *lot.App, bids *bid.Ledger) *Handler {
	return &Handler{auctions: auctions, lots: lots, bids: bids}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auctions", h.handleCreateAuction)
	mux.HandleFunc("GET /api/auctions/{id}", h.handleGetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/lots", h.handleAddLot)
	mux.HandleFunc("GET /api/auctions/{id}/lots", h.handleListLots)
	mux.HandleFunc("POST /api/auctions/{id}/schedule", h.handleScheduleAuction)
	mux.HandleFunc("POST /api/auctions/{id}/start", h.handleStartAuction)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", h.handleCancelAuction)
	mux.HandleFunc("POST /api/auctions/{id}/extend", h.handleExtendAuction)
	mux.HandleFunc("POST /api/auctions/{id}/current-lot", h.handleSetCurrentLot)
	mux.HandleFunc("POST /api/auctions/{id}/settle", h.handleSettleAuction)
	mux.HandleFunc("GET /api/lots/{id}", h.handleGetLot)
	mux.HandleFunc("PATCH /api/lots/{id}/condition", h.handleUpdateLotCondition)
	mux.HandleFunc("POST /api/lots/{id}/bids", h.handlePlaceBid)
	mux.HandleFunc("POST /api/lots/{id}/proxy-bids", h.handleRegisterProxy)
}

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req auction.CreateAuctionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.auctions.CreateAuction(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleAddLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req auction.AddLotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.AuctionID = id
	l, err := h.auctions.AddLot(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lots, err := h.lots.ListByAuction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *Handler) handleScheduleAuction(w http.ResponseWriter, r *http.Request) {
	h.auctionAction(w, r, h.auctions.ScheduleAuction)
}

func (h *Handler) handleStartAuction(w http.ResponseWriter, r *http.Request) {
	h.auctionAction(w, r, h.auctions.StartAuction)
}

func (h *Handler) handleSettleAuction(w http.ResponseWriter, r *http.Request) {
	h.auctionAction(w, r, h.auctions.SettleAuction)
}

func (h *Handler) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.auctions.CancelAuction(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleExtendAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Minutes int    `json:"minutes"`
		Reason  string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.auctions.ExtendAuction(r.Context(), id, req.Minutes, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleSetCurrentLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		LotNumber int `json:"lot_number"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.auctions.SetCurrentLot(r.Context(), id, req.LotNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := h.lots.GetLot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handleUpdateLotCondition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Condition models.LotCondition `json:"condition"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := h.lots.UpdateCondition(r.Context(), id, req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req bid.PlaceBidRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.LotID = id
	if req.Kind == "" {
		req.Kind = models.BidKindRegular
	}
	result, err := h.bids.PlaceBid(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRegisterProxy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		BidderID uuid.UUID       `json:"bidder_id"`
		Ceiling  decimal.Decimal `json:"ceiling"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	intent, err := h.bids.RegisterProxy(r.Context(), id, req.BidderID, req.Ceiling)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// auctionAction handles the body-less POST lifecycle commands.
func (h *Handler) auctionAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*models.Auction, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, auctionerrors.Validationf("invalid id in path")
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return auctionerrors.Validationf("invalid request body: %v", err)
	}
	return nil
}
