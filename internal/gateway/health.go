package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Sessions  int64    `json:"sessions"`
	Embedder  Embedder `json:"embedder"`
	UptimeSec int64    `json:"uptime_seconds"`
}

// Embedder describes the configured embedding provider.
type Embedder struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

// handleHealth returns an http.HandlerFunc for GET /health. A store that
// cannot report its session count marks the service degraded with a 503.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		emb := g.store.Embedder()
		resp := HealthResponse{
			Status: "ok",
			Embedder: Embedder{
				Name:      emb.Name(),
				Dimension: emb.Dimension(),
			},
			UptimeSec: int64(time.Since(g.startedAt) / time.Second),
		}

		n, err := g.store.Sessions().Count(r.Context())
		if err != nil {
			g.logger.Error("health: session count failed", "error", err)
			resp.Status = "degraded"
		}
		resp.Sessions = n

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
