package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is the slice of the database pool the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
}

// Healthz reports process liveness.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz reports readiness to serve traffic, which requires a reachable
// database.
func Readyz(db Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db == nil {
			respondHealth(w, http.StatusServiceUnavailable, "no database")
			return
		}
		if err := db.Ping(ctx); err != nil {
			respondHealth(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
