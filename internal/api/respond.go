package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/service"
)

// callerHeader carries the authenticated account id, set by the upstream
// auth proxy.
const callerHeader = "X-Account-ID"

var errNoCaller = errors.New("missing or invalid " + callerHeader + " header")

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, errNoCaller):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadySettled),
		errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidSelf),
		errors.Is(err, service.ErrInvalidParticipant),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrBelowMinimum):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondWithServiceError writes err with the status it maps to. Internal
// errors are logged and hidden from the client.
func respondWithServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Internal error")
		respondWithError(w, code, "internal error")
		return
	}
	respondWithError(w, code, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", service.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", service.ErrInvalidInput, name)
	}
	return id, nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func callerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.Header.Get(callerHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNoCaller
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s", service.ErrInvalidInput, name)
	}
	return &v, nil
}

func queryLimit(r *http.Request) int {
	limit, err := queryInt(r, "limit")
	if err != nil || limit == nil {
		return 0
	}
	return int(*limit)
}

// webhookDigest is the Authorization value the gateway sends:
// hex(sha256(username:password)).
func webhookDigest(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) webhookAuthorized(r *http.Request) bool {
	if h.webhookAuth == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookAuth)) == 1
}
