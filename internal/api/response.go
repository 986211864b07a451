package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arenasim/server/internal/game"
	"github.com/arenasim/server/internal/session"
	"github.com/arenasim/server/internal/world"
)

// errBadRequest marks malformed input (bad ids, bad bodies).
var errBadRequest = errors.New("bad request")

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// writeError maps a core error onto its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorResponse{Detail: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, world.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidName),
		errors.Is(err, game.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrInvalidPhase),
		errors.Is(err, world.ErrEliminated),
		errors.Is(err, world.ErrSpawnProtected):
		return http.StatusConflict
	case errors.Is(err, world.ErrOnCooldown),
		errors.Is(err, world.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, game.ErrStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
