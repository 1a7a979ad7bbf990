// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// newProcessorBreaker returns a circuit breaker tuned for external
// processor calls: five consecutive failures open it for fifteen
// seconds. An open breaker surfaces as a transient step failure, so jobs
// ride out downstream outages on their retry budget instead of hammering
// a struggling service.
func newProcessorBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// classifyHTTP maps a processor response status onto the pipeline error
// taxonomy: 4xx means the content itself is unacceptable (permanent),
// anything else worth reporting means the service is struggling
// (transient).
func classifyHTTP(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.TrimSpace(string(body))

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return Permanentf("%s rejected content: status %d: %s", service, resp.StatusCode, detail)
	}
	return Transientf("%s unavailable: status %d: %s", service, resp.StatusCode, detail)
}

// HTTPCompressor calls the external media compression service.
type HTTPCompressor struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPCompressor creates a compressor client for the given endpoint.
func NewHTTPCompressor(baseURL string, timeout time.Duration) *HTTPCompressor {
	return &HTTPCompressor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: newProcessorBreaker("compressor"),
	}
}

// Compress implements Compressor.
func (c *HTTPCompressor) Compress(ctx context.Context, ref ContentRef) (CompressResult, error) {
	payload, err := json.Marshal(map[string]string{"content_ref": ref.String()})
	if err != nil {
		return CompressResult{}, Permanent(fmt.Errorf("marshal compress request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compress", bytes.NewReader(payload))
	if err != nil {
		return CompressResult{}, Permanent(fmt.Errorf("build compress request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// Count server errors against the breaker.
			return resp, fmt.Errorf("compressor status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if resp == nil {
			return CompressResult{}, Transient(fmt.Errorf("compressor call: %w", err))
		}
		defer resp.Body.Close()
		return CompressResult{}, classifyHTTP("compressor", resp)
	}
	defer resp.Body.Close()

	if err := classifyHTTP("compressor", resp); err != nil {
		return CompressResult{}, err
	}

	var result CompressResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CompressResult{}, Transient(fmt.Errorf("decode compress response: %w", err))
	}
	return result, nil
}

// HTTPTranscriber streams media to the external speech-to-text service.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPTranscriber creates a transcriber client for the given endpoint.
func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: newProcessorBreaker("transcriber"),
	}
}

// Transcribe implements Transcriber. The source reader is streamed as
// the request body, so media of any size flows through without
// buffering. Reader errors, including mid-stream cancellation, abort the
// upload and propagate.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, source io.Reader, info ContentInfo) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/transcribe", source)
	if err != nil {
		return "", Permanent(fmt.Errorf("build transcribe request: %w", err))
	}
	if info.MimeType != "" {
		req.Header.Set("Content-Type", info.MimeType)
	}
	if info.SizeBytes > 0 {
		req.ContentLength = info.SizeBytes
	}

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, fmt.Errorf("transcriber status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		// A cancellation inside the source reader surfaces as a request
		// error wrapping ErrJobCancelled; keep that identity.
		if resp == nil {
			if errors.Is(err, ErrJobCancelled) {
				return "", ErrJobCancelled
			}
			return "", Transient(fmt.Errorf("transcriber call: %w", err))
		}
		defer resp.Body.Close()
		return "", classifyHTTP("transcriber", resp)
	}
	defer resp.Body.Close()

	if err := classifyHTTP("transcriber", resp); err != nil {
		return "", err
	}

	var result struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", Transient(fmt.Errorf("decode transcribe response: %w", err))
	}
	return result.Transcript, nil
}

// HTTPContentSource reaches the platform's content/object-storage
// gateway for raw media and transcript writes.
type HTTPContentSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPContentSource creates a content source client.
func NewHTTPContentSource(baseURL string, timeout time.Duration) *HTTPContentSource {
	return &HTTPContentSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Open implements ContentSource.
func (s *HTTPContentSource) Open(ctx context.Context, ref ContentRef) (io.ReadCloser, ContentInfo, error) {
	url := fmt.Sprintf("%s/v1/content/%s/%s", s.baseURL, ref.Type, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ContentInfo{}, Permanent(fmt.Errorf("build content request: %w", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ContentInfo{}, Transient(fmt.Errorf("open content: %w", err))
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ContentInfo{}, Permanentf("content %s not found", ref)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, ContentInfo{}, classifyHTTP("content source", resp)
	}

	info := ContentInfo{
		SizeBytes: resp.ContentLength,
		MimeType:  resp.Header.Get("Content-Type"),
	}
	return resp.Body, info, nil
}

// SaveTranscript implements ContentSource.
func (s *HTTPContentSource) SaveTranscript(ctx context.Context, ref ContentRef, transcript string) error {
	payload, err := json.Marshal(map[string]string{"transcript": transcript})
	if err != nil {
		return Permanent(fmt.Errorf("marshal transcript: %w", err))
	}

	url := fmt.Sprintf("%s/v1/content/%s/%s/transcript", s.baseURL, ref.Type, ref.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return Permanent(fmt.Errorf("build transcript request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("save transcript: %w", err))
	}
	defer resp.Body.Close()

	return classifyHTTP("content source", resp)
}

// HTTPNotifier posts terminal job outcomes to the notification dispatch
// service. All failures are logged at warn and swallowed.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier creates a notifier client for the given endpoint.
func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NotifyJobCompleted implements Notifier.
func (n *HTTPNotifier) NotifyJobCompleted(ctx context.Context, job *models.ProcessingJob) {
	n.post(ctx, map[string]string{
		"event":       "job_completed",
		"job_id":      job.ID.String(),
		"owner_id":    job.OwnerID.String(),
		"content_ref": job.ContentRef,
	})
}

// NotifyJobFailed implements Notifier.
func (n *HTTPNotifier) NotifyJobFailed(ctx context.Context, job *models.ProcessingJob, reason string) {
	n.post(ctx, map[string]string{
		"event":       "job_failed",
		"job_id":      job.ID.String(),
		"owner_id":    job.OwnerID.String(),
		"content_ref": job.ContentRef,
		"reason":      reason,
	})
}

func (n *HTTPNotifier) post(ctx context.Context, body map[string]string) {
	payload, err := json.Marshal(body)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("marshal notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/notify", bytes.NewReader(payload))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", body["event"]).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Ctx(ctx).Warn().
			Int("status", resp.StatusCode).
			Str("event", body["event"]).
			Msg("notification rejected")
	}
}
