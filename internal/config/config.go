// Package config reads process configuration from MEMO_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the process configuration shared by the memo binaries.
type Config struct {
	// SocketPath is the unix socket the cache daemon listens on.
	SocketPath string
	// DBPath is the bbolt file owned by the cache daemon.
	DBPath string
	Bucket string
	// Codec names the value codec, "msgpack" or "json".
	Codec string

	FetchTTL        time.Duration
	SearchTTL       time.Duration
	CleanupInterval time.Duration

	// MetricsAddr enables a Prometheus /metrics listener when set.
	MetricsAddr string
	// UserAgent overrides the rotating browser user agents of the web tools.
	UserAgent string
}

// Load reads the configuration, falling back to defaults under
// ~/.cache/memo.
func Load() (Config, error) {
	cfg := Config{
		SocketPath:  defaultString(os.Getenv("MEMO_CACHE_SOCK"), defaultPath("cache.sock")),
		DBPath:      defaultString(os.Getenv("MEMO_CACHE_DB"), defaultPath("cache.bbolt")),
		Bucket:      defaultString(os.Getenv("MEMO_CACHE_BUCKET"), "memo"),
		Codec:       defaultString(os.Getenv("MEMO_CODEC"), "msgpack"),
		MetricsAddr: os.Getenv("MEMO_METRICS_ADDR"),
		UserAgent:   os.Getenv("MEMO_USER_AGENT"),
	}

	var err error
	if cfg.FetchTTL, err = duration("MEMO_FETCH_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.SearchTTL, err = duration("MEMO_SEARCH_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.CleanupInterval, err = duration("MEMO_CLEANUP_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func duration(env string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(env)
	if v == "" {
		return d, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", env, err)
	}
	if out < 0 {
		return 0, fmt.Errorf("config: %s: negative duration %s", env, v)
	}
	return out, nil
}

func defaultPath(name string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "memo", name)
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
