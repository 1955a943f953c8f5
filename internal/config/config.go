// Package config loads engine configuration in three layers: defaults
// in code, an optional TOML file, then APPROVAL_* environment
// overrides. Derived roots (project, staging, metadata) are computed
// after all layers apply.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	NetworkRoot    string `toml:"network_root"`
	LocalFallback  string `toml:"local_fallback_root"`
	ProjectRoot    string `toml:"project_root"`
	StagingRoot    string `toml:"staging_root"`
	MetadataRoot   string `toml:"metadata_root"`

	ArchiveCap           int `toml:"archive_cap"`
	ProbeCacheSeconds    int `toml:"probe_cache_seconds"`
	RetryIntervalSeconds int `toml:"retry_interval_seconds"`

	IdentityProviderSource string `toml:"identity_provider_source"`

	HTTPAddr string `toml:"http_addr"`
	LogLevel string `toml:"log_level"`

	NotifyWebhookURL     string `toml:"notify_webhook_url"`
	NotifyTelegramToken  string `toml:"notify_telegram_token"`
	NotifyTelegramChatID int64  `toml:"notify_telegram_chat_id"`

	DigestInterval time.Duration `toml:"digest_interval"`

	MaxOpenSubmissionsPerUser int      `toml:"max_open_submissions_per_user"`
	AllowedContentTypes       []string `toml:"allowed_content_types"`
}

func Default() Config {
	return Config{
		NetworkRoot:               "/mnt/approvals",
		LocalFallback:             "./var/approvals-local",
		ProjectRoot:               "",
		StagingRoot:               "",
		MetadataRoot:              "",
		ArchiveCap:                1000,
		ProbeCacheSeconds:         30,
		RetryIntervalSeconds:      60,
		IdentityProviderSource:    "",
		HTTPAddr:                  ":8085",
		LogLevel:                  "info",
		DigestInterval:            10 * time.Minute,
		MaxOpenSubmissionsPerUser: 20,
		AllowedContentTypes:       nil,
	}
}

// Load reads an optional TOML file at path (empty is fine, defaults
// apply), then applies APPROVAL_* environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg, os.Getenv)

	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = joinRoot(cfg.NetworkRoot, "projects")
	}
	if cfg.StagingRoot == "" {
		cfg.StagingRoot = joinRoot(cfg.NetworkRoot, "staging")
	}
	if cfg.MetadataRoot == "" {
		cfg.MetadataRoot = joinRoot(cfg.NetworkRoot, "metadata")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("APPROVAL_NETWORK_ROOT"); v != "" {
		cfg.NetworkRoot = v
	}
	if v := getenv("APPROVAL_LOCAL_FALLBACK_ROOT"); v != "" {
		cfg.LocalFallback = v
	}
	if v := getenv("APPROVAL_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := getenv("APPROVAL_STAGING_ROOT"); v != "" {
		cfg.StagingRoot = v
	}
	if v := getenv("APPROVAL_METADATA_ROOT"); v != "" {
		cfg.MetadataRoot = v
	}
	if v := getenv("APPROVAL_ARCHIVE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ArchiveCap = n
		}
	}
	if v := getenv("APPROVAL_PROBE_CACHE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProbeCacheSeconds = n
		}
	}
	if v := getenv("APPROVAL_RETRY_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryIntervalSeconds = n
		}
	}
	if v := getenv("APPROVAL_IDENTITY_SOURCE"); v != "" {
		cfg.IdentityProviderSource = v
	}
	if v := getenv("APPROVAL_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := getenv("APPROVAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("APPROVAL_NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.NotifyWebhookURL = v
	}
	if v := getenv("APPROVAL_NOTIFY_TELEGRAM_TOKEN"); v != "" {
		cfg.NotifyTelegramToken = v
	}
	if v := getenv("APPROVAL_NOTIFY_TELEGRAM_CHAT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.NotifyTelegramChatID = n
		}
	}
	if v := getenv("APPROVAL_DIGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DigestInterval = d
		}
	}
	if v := getenv("APPROVAL_MAX_OPEN_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpenSubmissionsPerUser = n
		}
	}
	if v := getenv("APPROVAL_ALLOWED_CONTENT_TYPES"); v != "" {
		cfg.AllowedContentTypes = strings.Split(v, ",")
	}
}

func joinRoot(root, sub string) string {
	if root == "" {
		return sub
	}
	return strings.TrimRight(root, "/") + "/" + sub
}

func (c Config) validate() error {
	if c.NetworkRoot == "" {
		return fmt.Errorf("missing network_root")
	}
	if c.LocalFallback == "" {
		return fmt.Errorf("missing local_fallback_root")
	}
	if c.ArchiveCap <= 0 {
		return fmt.Errorf("archive_cap must be positive")
	}
	if c.ProbeCacheSeconds < 0 {
		return fmt.Errorf("probe_cache_seconds must not be negative")
	}
	if c.RetryIntervalSeconds <= 0 {
		return fmt.Errorf("retry_interval_seconds must be positive")
	}
	return nil
}
