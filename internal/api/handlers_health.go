// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds each dependency probe.
const readinessTimeout = 2 * time.Second

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness probes all registered dependencies. Any failure turns
// the whole endpoint 503 so load balancers stop routing here.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.readiness))
	healthy := true

	for _, check := range s.readiness {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := check.Check(ctx)
		cancel()

		if err != nil {
			components[check.Name] = err.Error()
			healthy = false
		} else {
			components[check.Name] = "ok"
		}
	}

	if !healthy {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "one or more dependencies are unhealthy", map[string]interface{}{
			"components": components,
		})
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status":     "ready",
		"components": components,
	})
}
