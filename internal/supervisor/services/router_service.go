// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package services

import (
	"context"
	"fmt"
)

// MessageRouter matches the pipeline transport router lifecycle.
// Satisfied by *transport.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
}

// RouterService runs the watermill router that consumes step messages.
// Run blocks until the context is cancelled, which is exactly suture's
// Serve contract, so the wrapper only translates errors.
type RouterService struct {
	router MessageRouter
}

// NewRouterService wraps the pipeline message router.
func NewRouterService(router MessageRouter) *RouterService {
	return &RouterService{router: router}
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	if err := s.router.Run(ctx); err != nil {
		return fmt.Errorf("pipeline router failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *RouterService) String() string {
	return "pipeline-router"
}
