package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.countRequests)

	// Public.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	r.Route("/context", func(r chi.Router) {
		r.Post("/add", g.handleAdd())
		r.Post("/query", g.handleQuery())
		r.Get("/recent", g.handleRecent())
		r.Get("/stats/{session_id}", g.handleStats())

		// Clear is destructive; it alone sits behind the token when
		// one is configured.
		if g.config.Auth.IsConfigured() {
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware(g.config.Auth))
				r.Post("/clear", g.handleClear())
			})
		} else {
			r.Post("/clear", g.handleClear())
		}
	})

	return r
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		g.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
