// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

// StepSignatureHeader carries the HS256 token on the HTTP ingress.
const StepSignatureHeader = "X-Pipeline-Signature"

// handleStepExecution is the HTTP ingress for step messages. It exists
// for transports that deliver over webhooks instead of the broker; the
// payload is the same signed step message. Signature verification
// happens before any job state is touched.
func (s *Server) handleStepExecution(w http.ResponseWriter, r *http.Request) {
	if s.steps == nil || s.signer == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "step execution is not available", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "could not read request body", nil)
		return
	}

	stepMsg, err := transport.UnmarshalStepMessage(payload)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "malformed step message", nil)
		return
	}

	token := r.Header.Get(StepSignatureHeader)
	if token == "" {
		metrics.TransportSignatureRejections.Inc()
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "step message is not signed", nil)
		return
	}
	if err := s.signer.Verify(token, stepMsg.JobID, stepMsg.Step); err != nil {
		metrics.TransportSignatureRejections.Inc()
		logging.Ctx(r.Context()).Warn().
			Str("job_id", stepMsg.JobID.String()).
			Str("step", string(stepMsg.Step)).
			Msg("rejected step request with invalid signature")
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid step signature", nil)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(transport.SignatureHeader, token)
	msg.SetContext(r.Context())

	if err := s.steps.Handle(msg); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("job_id", stepMsg.JobID.String()).
			Msg("step execution could not be accepted")
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "step could not be processed, retry delivery", nil)
		return
	}

	respondSuccess(w, r, http.StatusAccepted, map[string]interface{}{
		"job_id": stepMsg.JobID,
		"step":   stepMsg.Step,
	})
}
