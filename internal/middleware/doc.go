// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

/*
Package middleware provides HTTP middleware for the API server.

All middleware uses the chi-compatible func(http.Handler) http.Handler
shape and composes through chi's Use chain:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Prometheus)
	r.Use(middleware.Compression)

Key components:

  - RequestID: UUID request tracking propagated into the logging
    context, honoring X-Request-ID from upstream proxies.
  - Prometheus: per-endpoint request count and latency instrumentation.
  - Compression: gzip for clients that send Accept-Encoding: gzip.

CORS and rate limiting come from go-chi/cors and go-chi/httprate and
are configured directly on the router.
*/
package middleware
