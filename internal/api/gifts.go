package api

import (
	"net/http"

	"stream-wallet/internal/service"
)

func (h *Handler) ListGiftsHandler(w http.ResponseWriter, r *http.Request) {
	gifts, err := h.gifts.ListGifts(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, gifts)
}

type createGiftRequest struct {
	Name        string `json:"name"`
	GifFilename string `json:"gif_filename"`
	DiamondCost int64  `json:"diamond_cost"`
}

func (h *Handler) CreateGiftHandler(w http.ResponseWriter, r *http.Request) {
	var req createGiftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	gift, err := h.gifts.CreateGift(r.Context(), req.Name, req.GifFilename, req.DiamondCost)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, gift)
}

func (h *Handler) DeleteGiftHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if err := h.gifts.DeleteGift(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendGiftHandler settles a gift from the calling account. An unaffordable
// gift answers 200 with the declined details so the client can offer a
// purchase.
func (h *Handler) SendGiftHandler(w http.ResponseWriter, r *http.Request) {
	sender, err := callerID(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req service.GiftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}
	req.SenderID = sender

	receipt, err := h.gifts.SendGift(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if receipt.Declined != nil {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"status":  "insufficient_diamonds",
			"details": receipt.Declined,
		})
		return
	}
	respondWithJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) StreamGiftsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	txs, err := h.gifts.GiftsForStream(r.Context(), id, pathVar(r, "type"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}
