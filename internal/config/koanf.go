// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/baifan1366/Studify-sub011/internal/validation"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/studify/config.yaml",
	"/etc/studify/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces all environment overrides, e.g.
// STUDIFY_DATABASE_URL, STUDIFY_NATS_EMBEDDED_SERVER.
const envPrefix = "STUDIFY_"

// envOverrides maps environment variable names (without prefix) to koanf
// paths. Explicit mapping avoids ambiguity between section separators and
// underscores inside key names (MAX_RETRIES vs NATS_STREAM_NAME).
var envOverrides = map[string]string{
	"SERVER_HOST":              "server.host",
	"SERVER_PORT":              "server.port",
	"SERVER_CORS_ORIGINS":      "server.cors_origins",
	"SERVER_RATE_LIMIT":        "server.rate_limit",
	"DATABASE_URL":             "database.url",
	"DATABASE_MAX_CONNS":       "database.max_conns",
	"NATS_URL":                 "nats.url",
	"NATS_EMBEDDED_SERVER":     "nats.embedded_server",
	"NATS_STORE_DIR":           "nats.store_dir",
	"NATS_STREAM_NAME":         "nats.stream_name",
	"NATS_QUEUE_GROUP":         "nats.queue_group",
	"NATS_POISON_TOPIC":        "nats.poison_topic",
	"PIPELINE_MAX_RETRIES":     "pipeline.max_retries",
	"PIPELINE_SIGNING_SECRET":  "pipeline.signing_secret",
	"PIPELINE_STEP_TIMEOUT":    "pipeline.step_timeout",
	"PIPELINE_COMPRESSOR_URL":  "pipeline.compressor_url",
	"PIPELINE_TRANSCRIBER_URL": "pipeline.transcriber_url",
	"EMBEDDING_BATCH_SIZE":     "embedding.batch_size",
	"EMBEDDING_MODEL_A_URL":    "embedding.model_a_url",
	"EMBEDDING_MODEL_B_URL":    "embedding.model_b_url",
	"EMBEDDING_API_KEY":        "embedding.api_key",
	"RECOMMEND_RULES_WEIGHT":   "recommend.rules_weight",
	"RECOMMEND_CACHE_PATH":     "recommend.cache_path",
	"LOG_LEVEL":                "logging.level",
	"LOG_FORMAT":               "logging.format",
	"LOG_CALLER":               "logging.caller",
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. STUDIFY_* environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, envPrefix)
		if path, ok := envOverrides[key]; ok {
			return path
		}
		// Unknown variable under our prefix: ignore rather than guess.
		return ""
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if verr := validation.ValidateStruct(cfg); verr != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", verr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
