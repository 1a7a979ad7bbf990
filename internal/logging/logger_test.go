// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFacadeLevelEvents(t *testing.T) {
	var buf bytes.Buffer

	Init(Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})

	Debug().Str("k", "v").Msg("debug line")
	Info().Msg("info line")
	Warn().Msg("warn line")
	Error().Msg("error line")

	output := buf.String()
	for _, want := range []string{
		`"level":"debug"`, "debug line", `"k":"v"`,
		`"level":"info"`, "info line",
		`"level":"warn"`, "warn line",
		`"level":"error"`, "error line",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestCtxCorrelationFields(t *testing.T) {
	var buf bytes.Buffer

	Init(Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	ctx = ContextWithJobID(ctx, "job-7")

	Ctx(ctx).Info().Msg("correlated")

	output := buf.String()
	if !strings.Contains(output, `"request_id":"req-42"`) {
		t.Errorf("expected request_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"job_id":"job-7"`) {
		t.Errorf("expected job_id in output, got: %s", output)
	}
	if !strings.Contains(output, "correlated") {
		t.Errorf("expected message in output, got: %s", output)
	}
}

func TestCtxWithoutIDsLogsPlain(t *testing.T) {
	var buf bytes.Buffer

	Init(Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})

	Ctx(context.Background()).Warn().Msg("plain")

	output := buf.String()
	if strings.Contains(output, "request_id") || strings.Contains(output, "job_id") {
		t.Errorf("expected no correlation fields, got: %s", output)
	}
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("expected warn level, got: %s", output)
	}
}
