package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contextcore/contextd/internal/memory"
	"github.com/contextcore/contextd/internal/retrieval"
)

type addRequest struct {
	SessionID string `json:"session_id"`
	Message   struct {
		Role      string          `json:"role"`
		Type      string          `json:"type"`
		Content   string          `json:"content"`
		Timestamp *time.Time      `json:"timestamp"`
		Metadata  memory.Metadata `json:"metadata"`
	} `json:"message"`
}

type queryRequest struct {
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	RecentK      int    `json:"recent_k"`
	MaxSlice     int    `json:"max_slice"`
	FilterByType string `json:"filter_by_type"`
}

type clearRequest struct {
	SessionID string `json:"session_id"`
}

type clearResponse struct {
	SessionID       string `json:"session_id"`
	Cleared         bool   `json:"cleared"`
	MessagesRemoved int64  `json:"messages_removed"`
}

type recentResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []memory.Message `json:"messages"`
}

func (g *Gateway) handleAdd() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, g, err)
			return
		}

		add := memory.AddRequest{
			SessionID: req.SessionID,
			Role:      memory.Role(req.Message.Role),
			Type:      memory.MessageType(req.Message.Type),
			Content:   req.Message.Content,
			Metadata:  req.Message.Metadata,
		}
		if req.Message.Timestamp != nil {
			add.Timestamp = *req.Message.Timestamp
		}

		msg, err := g.store.Add(r.Context(), add)
		if err != nil {
			writeError(w, g, err)
			return
		}
		g.metrics.messagesAdded.Inc()
		writeJSON(w, http.StatusOK, msg)
	}
}

func (g *Gateway) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, g, err)
			return
		}

		start := time.Now()
		slice, err := g.retriever.Retrieve(r.Context(), req.SessionID, req.Query, retrieval.Options{
			SemanticK:    req.TopK,
			RecentK:      req.RecentK,
			MaxSliceSize: req.MaxSlice,
			TypeFilter:   memory.MessageType(req.FilterByType),
		})
		if err != nil {
			writeError(w, g, err)
			return
		}
		g.metrics.retrieveTime.Observe(time.Since(start).Seconds())
		if slice.Degraded {
			g.metrics.degradedSlices.Inc()
		}
		writeJSON(w, http.StatusOK, slice)
	}
}

func (g *Gateway) handleRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sessionID := q.Get("session_id")

		limit := 10
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, g, validationErr("limit must be an integer"))
				return
			}
			limit = n
		}
		offset := 0
		if v := q.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, g, validationErr("offset must be an integer"))
				return
			}
			offset = n
		}

		msgs, err := g.store.Recent(r.Context(), sessionID, limit, offset, memory.MessageType(q.Get("type")))
		if err != nil {
			writeError(w, g, err)
			return
		}
		if msgs == nil {
			msgs = []memory.Message{}
		}
		writeJSON(w, http.StatusOK, recentResponse{SessionID: sessionID, Messages: msgs})
	}
}

func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		stats, err := g.store.Stats(r.Context(), sessionID)
		if err != nil {
			writeError(w, g, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (g *Gateway) handleClear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clearRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, g, err)
			return
		}

		n, err := g.store.Clear(r.Context(), req.SessionID)
		if err != nil {
			writeError(w, g, err)
			return
		}
		writeJSON(w, http.StatusOK, clearResponse{
			SessionID:       req.SessionID,
			Cleared:         true,
			MessagesRemoved: n,
		})
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return validationErr("invalid JSON body: " + err.Error())
	}
	return nil
}

func validationErr(msg string) error {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses: validation failures are
// the caller's fault, upstream failures surface as gateway errors.
func writeError(w http.ResponseWriter, g *Gateway, err error) {
	var apiErr *apiError
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.status
	case errors.Is(err, memory.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, memory.ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
		g.metrics.upstreamErrors.Inc()
	case errors.Is(err, memory.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
		g.metrics.upstreamErrors.Inc()
	default:
		g.logger.Error("request failed", "error", err)
		msg = "internal error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}
