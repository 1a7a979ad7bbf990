// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// ErrInvalidSignature is returned when a step message carries a missing,
// forged, or expired signature. Callers must ack and drop the message
// without touching the job store.
var ErrInvalidSignature = errors.New("invalid step message signature")

// StepClaims binds a signature to one specific dispatch: the token is
// only valid for the exact job and step it was minted for.
type StepClaims struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HMAC-SHA256 tokens for step messages. The
// transport is shared infrastructure; signatures guarantee that step
// executions can only be triggered by the dispatcher holding the secret.
type Signer struct {
	secret []byte
	maxAge time.Duration
}

// NewSigner creates a signer. maxAge bounds how long a captured token
// remains replayable; zero disables the age check (tests only).
func NewSigner(secret string, maxAge time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret must not be empty")
	}
	return &Signer{secret: []byte(secret), maxAge: maxAge}, nil
}

// Sign returns a signed token for one dispatch of the given job and step.
func (s *Signer) Sign(jobID uuid.UUID, step models.PipelineStep, dispatchedAt time.Time) (string, error) {
	claims := &StepClaims{
		JobID: jobID.String(),
		Step:  string(step),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(dispatchedAt),
			NotBefore: jwt.NewNumericDate(dispatchedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign step token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and that it was minted for the
// given job and step within the replay window. Any failure maps to
// ErrInvalidSignature so callers need only one check.
func (s *Signer) Verify(tokenString string, jobID uuid.UUID, step models.PipelineStep) error {
	if tokenString == "" {
		return ErrInvalidSignature
	}

	token, err := jwt.ParseWithClaims(tokenString, &StepClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	claims, ok := token.Claims.(*StepClaims)
	if !ok || !token.Valid {
		return ErrInvalidSignature
	}

	if claims.JobID != jobID.String() || claims.Step != string(step) {
		return fmt.Errorf("%w: token bound to different dispatch", ErrInvalidSignature)
	}

	if s.maxAge > 0 {
		if claims.IssuedAt == nil {
			return fmt.Errorf("%w: missing issued-at", ErrInvalidSignature)
		}
		if time.Since(claims.IssuedAt.Time) > s.maxAge {
			return fmt.Errorf("%w: token older than %s", ErrInvalidSignature, s.maxAge)
		}
	}

	return nil
}
