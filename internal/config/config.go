// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ProviderTimeout time.Duration
	FanoutLimit     int
	SyncTick        time.Duration
	DraftTTL        time.Duration

	GitHubToken    string
	GitHubUsername string
	GitHubRepo     string
	GitHubPR       int
	WorkspaceRoot  string
}

// GitHubEnabled reports whether a pull request and a token are configured.
// The username is optional and is resolved from the token when missing.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubToken != "" && c.GitHubRepo != "" && c.GitHubPR > 0
}

// Load reads configuration from environment variables and returns a validated
// Config. Every variable is optional:
//
//	COMMENTSYNC_LISTEN_ADDR       (127.0.0.1:8390)
//	COMMENTSYNC_DB_PATH           (commentsync.db; empty disables draft persistence)
//	COMMENTSYNC_PROVIDER_TIMEOUT  (5s)
//	COMMENTSYNC_FANOUT_LIMIT      (8)
//	COMMENTSYNC_SYNC_TICK         (30s)
//	COMMENTSYNC_DRAFT_TTL         (720h)
//	COMMENTSYNC_GITHUB_TOKEN, COMMENTSYNC_GITHUB_USERNAME,
//	COMMENTSYNC_GITHUB_REPO (owner/repo), COMMENTSYNC_GITHUB_PR
//	COMMENTSYNC_WORKSPACE_ROOT    (file:///workspace)
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      "127.0.0.1:8390",
		DBPath:          "commentsync.db",
		ProviderTimeout: 5 * time.Second,
		FanoutLimit:     8,
		SyncTick:        30 * time.Second,
		DraftTTL:        30 * 24 * time.Hour,
		WorkspaceRoot:   "file:///workspace",
	}

	if v, ok := os.LookupEnv("COMMENTSYNC_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("COMMENTSYNC_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("COMMENTSYNC_WORKSPACE_ROOT"); ok && v != "" {
		cfg.WorkspaceRoot = strings.TrimSuffix(v, "/")
	}

	var err error
	if cfg.ProviderTimeout, err = positiveDuration("COMMENTSYNC_PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return nil, err
	}
	if cfg.SyncTick, err = positiveDuration("COMMENTSYNC_SYNC_TICK", cfg.SyncTick); err != nil {
		return nil, err
	}
	if cfg.DraftTTL, err = positiveDuration("COMMENTSYNC_DRAFT_TTL", cfg.DraftTTL); err != nil {
		return nil, err
	}
	if cfg.FanoutLimit, err = positiveInt("COMMENTSYNC_FANOUT_LIMIT", cfg.FanoutLimit); err != nil {
		return nil, err
	}

	cfg.GitHubToken = os.Getenv("COMMENTSYNC_GITHUB_TOKEN")
	cfg.GitHubUsername = os.Getenv("COMMENTSYNC_GITHUB_USERNAME")

	if v, ok := os.LookupEnv("COMMENTSYNC_GITHUB_REPO"); ok && v != "" {
		owner, name, found := strings.Cut(v, "/")
		if !found || owner == "" || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("COMMENTSYNC_GITHUB_REPO must be owner/repo, got %q", v)
		}
		cfg.GitHubRepo = v
	}
	if cfg.GitHubPR, err = positiveInt("COMMENTSYNC_GITHUB_PR", 0); err != nil {
		return nil, err
	}

	if cfg.GitHubRepo != "" || cfg.GitHubPR > 0 {
		if cfg.GitHubRepo == "" || cfg.GitHubPR == 0 {
			return nil, errors.New("COMMENTSYNC_GITHUB_REPO and COMMENTSYNC_GITHUB_PR must be set together")
		}
		if cfg.GitHubToken == "" {
			return nil, errors.New("COMMENTSYNC_GITHUB_TOKEN is required when a pull request is configured")
		}
	}

	return cfg, nil
}

func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func positiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid number %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
