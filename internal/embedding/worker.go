// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"context"
	"time"

	"github.com/baifan1366/Studify-sub011/internal/logging"
)

// Worker drives the generator on an interval as a supervised service.
// It implements suture.Service; crashes are restarted by the supervisor
// tree.
type Worker struct {
	generator *Generator
	batchSize int
	interval  time.Duration
}

// NewWorker creates an embedding worker.
func NewWorker(generator *Generator, batchSize int, interval time.Duration) *Worker {
	return &Worker{
		generator: generator,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Serve implements suture.Service. It polls for queued items until the
// context is canceled. A non-empty batch immediately triggers another
// pass so backlogs drain at full speed instead of one batch per tick.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().
		Int("batch_size", w.batchSize).
		Dur("interval", w.interval).
		Msg("embedding worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		processed, err := w.generator.ProcessBatch(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Msg("embedding batch failed")
		}
		if processed > 0 {
			// Drain mode: keep claiming while work remains.
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (w *Worker) String() string {
	return "embedding-worker"
}
