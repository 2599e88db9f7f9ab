// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config reads the verifier's runtime configuration from
// environment variables.
//
// # Environment Variables
//
//   - BRAVE_API_KEY: Brave Search subscription token (required for live search)
//   - BRAVE_RPS: search token refill rate per second (default: 1.0)
//   - BRAVE_BURST: search token bucket capacity (default: 2)
//   - BRAVE_MAX_RETRIES: retry budget for throttled search calls (default: 4)
//   - BRAVE_BACKOFF_BASE_MS: base backoff in milliseconds (default: 250)
//   - BRAVE_CACHE_TTL_SEC: search cache TTL in seconds (default: 1800)
//   - WHITELIST_DOMAINS: comma-separated domain suffixes, empty = allow all
//   - OPENAI_LOW_RPM: serialize model calls under an RPM budget (default: on)
//   - OPENAI_RPM: model requests per minute in low-RPM mode (default: 3)
//   - OPENAI_MAX_SUBCLAIMS: subclaims verified in low-RPM mode (default: 1)
//   - OPENAI_USE_DEBATE: run the adversarial debate in low-RPM mode (default: on)
//   - MAX_PARALLEL: in-flight model call ceiling (default: 4)
//   - FACTCHECK_DATA_DIR: report store directory, empty = in-memory
//   - PORT: HTTP server port (default: 8080)
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	BraveAPIKey      string
	BraveRPS         float64
	BraveBurst       int
	BraveMaxRetries  int
	BraveBackoffBase time.Duration
	BraveCacheTTL    time.Duration
	WhitelistDomains []string

	LowRPMMode   bool
	OpenAIRPM    int
	MaxSubclaims int
	UseDebate    bool
	MaxParallel  int

	DataDir string
	Port    int
}

// Load resolves the configuration from the environment, applying defaults
// and flooring the knobs that must stay positive.
func Load() Config {
	cfg := Config{
		BraveAPIKey:      os.Getenv("BRAVE_API_KEY"),
		BraveRPS:         getEnvFloat("BRAVE_RPS", 1.0),
		BraveBurst:       getEnvInt("BRAVE_BURST", 2),
		BraveMaxRetries:  getEnvInt("BRAVE_MAX_RETRIES", 4),
		BraveBackoffBase: time.Duration(getEnvInt("BRAVE_BACKOFF_BASE_MS", 250)) * time.Millisecond,
		BraveCacheTTL:    time.Duration(getEnvInt("BRAVE_CACHE_TTL_SEC", 1800)) * time.Second,
		WhitelistDomains: splitDomains(os.Getenv("WHITELIST_DOMAINS")),

		LowRPMMode:   getEnvBool("OPENAI_LOW_RPM", true),
		OpenAIRPM:    getEnvInt("OPENAI_RPM", 3),
		MaxSubclaims: getEnvInt("OPENAI_MAX_SUBCLAIMS", 1),
		UseDebate:    getEnvBool("OPENAI_USE_DEBATE", true),
		MaxParallel:  getEnvInt("MAX_PARALLEL", 4),

		DataDir: os.Getenv("FACTCHECK_DATA_DIR"),
		Port:    getEnvInt("PORT", 8080),
	}
	if cfg.OpenAIRPM < 1 {
		cfg.OpenAIRPM = 1
	}
	if cfg.MaxSubclaims < 1 {
		cfg.MaxSubclaims = 1
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return cfg
}

// DebateEnabled reports whether the adversarial debate runs for this
// configuration. Outside low-RPM mode the debate is always on; in low-RPM
// mode it defaults on and can be opted out of.
func (c Config) DebateEnabled() bool {
	if !c.LowRPMMode {
		return true
	}
	return c.UseDebate
}

func splitDomains(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, d := range strings.Split(raw, ",") {
		d = strings.TrimSpace(strings.ToLower(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// getEnvInt returns an environment variable as int, or defaultVal if not set/invalid.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvFloat returns an environment variable as float64, or defaultVal if not set/invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

// getEnvBool returns an environment variable as bool, or defaultVal if not set/invalid.
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
