// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package transport

import (
	"time"

	"github.com/baifan1366/Studify-sub011/internal/config"
)

// Topic layout: one JetStream stream captures every pipeline subject.
// Step-execution subjects are per step name so executors can subscribe
// selectively; failed messages land on the poison subject after the
// router's retry budget is exhausted.
const (
	// SubjectPrefix is the root of all pipeline subjects.
	SubjectPrefix = "pipeline"

	// StepSubjectPrefix prefixes step-execution subjects,
	// e.g. "pipeline.step.compress".
	StepSubjectPrefix = SubjectPrefix + ".step."

	// DefaultPoisonTopic receives messages that exhausted router retries.
	DefaultPoisonTopic = SubjectPrefix + ".poison"
)

// StepTopic returns the subject a step-execution message is published to.
func StepTopic(step string) string {
	return StepSubjectPrefix + step
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// PublisherConfig holds JetStream publisher settings.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool
}

// SubscriberConfig holds durable JetStream subscriber settings.
type SubscriberConfig struct {
	URL              string
	StreamName       string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
}

// StreamConfig defines the pipeline stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	DuplicateWindow time.Duration
	Replicas        int
}

// RouterConfig holds Watermill router middleware settings.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	PoisonQueueTopic     string
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// DefaultSubscriberConfig returns production defaults for the subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "step-executor",
		QueueGroup:       "executors",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// DefaultRouterConfig returns production defaults for the router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     DefaultPoisonTopic,
	}
}

// FromAppConfig derives the transport configuration set from the
// application's NATS section.
func FromAppConfig(cfg config.NATSConfig) (ServerConfig, PublisherConfig, SubscriberConfig, StreamConfig, RouterConfig) {
	server := ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}

	pub := DefaultPublisherConfig(cfg.URL)

	sub := DefaultSubscriberConfig(cfg.URL)
	sub.StreamName = cfg.StreamName
	if cfg.DurableName != "" {
		sub.DurableName = cfg.DurableName
	}
	if cfg.QueueGroup != "" {
		sub.QueueGroup = cfg.QueueGroup
	}
	if cfg.SubscribersCount > 0 {
		sub.SubscribersCount = cfg.SubscribersCount
	}

	stream := StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{SubjectPrefix + ".>"},
		MaxAge:          time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour,
		MaxBytes:        cfg.MaxStore,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}

	router := DefaultRouterConfig()
	if cfg.RouterRetryCount > 0 {
		router.RetryMaxRetries = cfg.RouterRetryCount
	}
	if cfg.RouterRetryInitialInterval > 0 {
		router.RetryInitialInterval = cfg.RouterRetryInitialInterval
	}
	if cfg.RouterCloseTimeout > 0 {
		router.CloseTimeout = cfg.RouterCloseTimeout
	}
	if cfg.PoisonTopic != "" {
		router.PoisonQueueTopic = cfg.PoisonTopic
	}

	return server, pub, sub, stream, router
}
