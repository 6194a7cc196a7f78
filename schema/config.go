package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// EngineConfig defines timing and limits for the input engine.
type EngineConfig struct {
	InlineDebounce  time.Duration
	InlineLimit     int
	DropdownLimit   int
	SuggestCacheTTL time.Duration
	CommitDelay     time.Duration
	ProbeDelay      time.Duration
	DefaultSize     Dimensions
}

const (
	// DefaultInlineDebounce is the inline suggestion debounce.
	DefaultInlineDebounce = 100 * time.Millisecond
	// DefaultInlineLimit is the inline suggestion count.
	DefaultInlineLimit = 1
	// DefaultDropdownLimit is the dropdown suggestion count.
	DefaultDropdownLimit = 10
	// DefaultSuggestCacheTTL bounds how long a fetched set is reused.
	DefaultSuggestCacheTTL = 2 * time.Second
	// DefaultCommitDelay separates the erase burst from the dropdown command.
	DefaultCommitDelay = 50 * time.Millisecond
	// DefaultProbeDelay delays the OS fingerprint probe after connect.
	DefaultProbeDelay = time.Second
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.InlineDebounce <= 0 {
		cfg.InlineDebounce = DefaultInlineDebounce
	}
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = DefaultInlineLimit
	}
	if cfg.DropdownLimit <= 0 {
		cfg.DropdownLimit = DefaultDropdownLimit
	}
	// A negative TTL disables the suggestion cache and survives renormalizing.
	if cfg.SuggestCacheTTL < 0 {
		cfg.SuggestCacheTTL = -1
	} else if cfg.SuggestCacheTTL == 0 {
		cfg.SuggestCacheTTL = DefaultSuggestCacheTTL
	}
	if cfg.CommitDelay <= 0 {
		cfg.CommitDelay = DefaultCommitDelay
	}
	if cfg.ProbeDelay <= 0 {
		cfg.ProbeDelay = DefaultProbeDelay
	}
	if cfg.DefaultSize.Cols <= 0 {
		cfg.DefaultSize.Cols = 80
	}
	if cfg.DefaultSize.Rows <= 0 {
		cfg.DefaultSize.Rows = 24
	}
	if cfg.InlineLimit > cfg.DropdownLimit {
		return EngineConfig{}, errors.New("inline limit must not exceed dropdown limit")
	}
	return cfg, nil
}

// DefaultStateDir returns ~/.ait/state.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ait", "state"), nil
}
