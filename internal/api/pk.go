package api

import (
	"net/http"
	"strconv"

	"stream-wallet/internal/service"
)

type startBattleRequest struct {
	LeftHostID    int64  `json:"left_host_id"`
	RightHostID   int64  `json:"right_host_id"`
	LeftStreamID  *int64 `json:"left_stream_id"`
	RightStreamID *int64 `json:"right_stream_id"`
}

func (h *Handler) StartBattleHandler(w http.ResponseWriter, r *http.Request) {
	var req startBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	battle, err := h.pk.Start(r.Context(), req.LeftHostID, req.RightHostID, req.LeftStreamID, req.RightStreamID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/pk-battles/"+strconv.FormatInt(battle.ID, 10))
	respondWithJSON(w, http.StatusCreated, battle)
}

func (h *Handler) ListBattlesHandler(w http.ResponseWriter, r *http.Request) {
	hostID, err := queryInt(r, "host_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	battles, err := h.pk.History(r.Context(), hostID, queryLimit(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, battles)
}

func (h *Handler) GetBattleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	battle, err := h.pk.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, battle)
}

type battleGiftRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	GiftID     *int64 `json:"gift_id"`
	Amount     int64  `json:"amount"`
}

// BattleGiftHandler adds a gift from the calling account to one host's
// score.
func (h *Handler) BattleGiftHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	sender, err := callerID(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req battleGiftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	battle, event, err := h.pk.SendGift(r.Context(), service.PKGiftRequest{
		BattleID:   id,
		SenderID:   sender,
		ReceiverID: req.ReceiverID,
		GiftID:     req.GiftID,
		Amount:     req.Amount,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]any{
		"battle": battle,
		"event":  event,
		"leader": battle.Leader(),
	})
}

type endBattleRequest struct {
	LeftScore  int64  `json:"left_score"`
	RightScore int64  `json:"right_score"`
	WinnerID   *int64 `json:"winner_id"`
}

func (h *Handler) EndBattleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req endBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	battle, err := h.pk.End(r.Context(), service.PKEndRequest{
		BattleID:   id,
		LeftScore:  req.LeftScore,
		RightScore: req.RightScore,
		WinnerID:   req.WinnerID,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, battle)
}

func (h *Handler) BattleEventsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	events, err := h.pk.Events(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	totals, err := h.pk.EventTotals(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"totals": totals,
	})
}
