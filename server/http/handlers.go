package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/ratelimit"
	"github.com/w-h-a/grounded/server"
)

type answerRequest struct {
	Query     string `json:"query"`
	SessionId string `json:"session_id"`
}

type usageResponse struct {
	Usage ratelimit.Usage `json:"usage"`
	Cache cache.Stats     `json:"cache"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	service server.Service
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rsp, err := h.service.Answer(r.Context(), req.Query, req.SessionId)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, rsp)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	turns, err := h.service.History(r.Context(), id)
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": turns})
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.service.DeleteSession(r.Context(), id) {
		writeError(w, http.StatusNotFound, errs.ErrSessionNotFound.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.Usage(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}

	stats, err := h.service.CacheStats(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{Usage: usage, Cache: stats})
}

func writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
