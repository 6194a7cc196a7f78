package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/ait/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	DatabasePath  string          `mapstructure:"database_path" yaml:"database_path"`
	Vault         VaultConfig     `mapstructure:"vault" yaml:"vault"`
	Suggest       SuggestConfig   `mapstructure:"suggest" yaml:"suggest"`
	Overlay       OverlayConfig   `mapstructure:"overlay" yaml:"overlay"`
	Session       SessionConfig   `mapstructure:"session" yaml:"session"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
	Keyboard      KeyboardConfig  `mapstructure:"keyboard" yaml:"keyboard"`
	Assistant     AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// VaultConfig locates the encrypted credential store.
type VaultConfig struct {
	StorePath string `mapstructure:"store_path" yaml:"store_path"`
	SecretDir string `mapstructure:"secret_dir" yaml:"secret_dir"`
}

// SuggestConfig controls suggestion timing and limits.
type SuggestConfig struct {
	InlineDebounceMS int `mapstructure:"inline_debounce_ms" yaml:"inline_debounce_ms"`
	InlineLimit      int `mapstructure:"inline_limit" yaml:"inline_limit"`
	DropdownLimit    int `mapstructure:"dropdown_limit" yaml:"dropdown_limit"`
	// CacheTTLMS of zero or less disables the suggestion cache.
	CacheTTLMS int `mapstructure:"cache_ttl_ms" yaml:"cache_ttl_ms"`
}

// OverlayConfig controls the overlay.
type OverlayConfig struct {
	CommitDelayMS int `mapstructure:"commit_delay_ms" yaml:"commit_delay_ms"`
}

// SessionConfig controls session defaults.
type SessionConfig struct {
	ProbeDelayMS int `mapstructure:"probe_delay_ms" yaml:"probe_delay_ms"`
	DefaultCols  int `mapstructure:"default_cols" yaml:"default_cols"`
	DefaultRows  int `mapstructure:"default_rows" yaml:"default_rows"`
}

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	KnownHosts         string `mapstructure:"known_hosts" yaml:"known_hosts"`
	DialTimeoutSeconds int    `mapstructure:"dial_timeout_seconds" yaml:"dial_timeout_seconds"`
	Term               string `mapstructure:"term" yaml:"term"`
}

// KeyboardConfig controls local key reporting.
type KeyboardConfig struct {
	// Enhanced asks the local terminal for CSI-u key reports so Shift+Space
	// and Ctrl+digits are distinguishable.
	Enhanced bool `mapstructure:"enhanced" yaml:"enhanced"`
}

// AssistantConfig holds assistant defaults. Values stored with
// `ait settings set` take precedence.
type AssistantConfig struct {
	ServerURL      string `mapstructure:"server_url" yaml:"server_url"`
	Model          string `mapstructure:"model" yaml:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// LoggingConfig controls where interactive sessions log.
type LoggingConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	base := filepath.Join(home, ".ait")
	state := filepath.Join(base, "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      state,
		DatabasePath:  filepath.Join(state, "ait.db"),
		Vault: VaultConfig{
			StorePath: filepath.Join(state, "vault", "keys.bundle"),
			SecretDir: filepath.Join(state, "vault", "secrets"),
		},
		Suggest: SuggestConfig{
			InlineDebounceMS: int(schema.DefaultInlineDebounce / time.Millisecond),
			InlineLimit:      schema.DefaultInlineLimit,
			DropdownLimit:    schema.DefaultDropdownLimit,
			CacheTTLMS:       int(schema.DefaultSuggestCacheTTL / time.Millisecond),
		},
		Overlay: OverlayConfig{
			CommitDelayMS: int(schema.DefaultCommitDelay / time.Millisecond),
		},
		Session: SessionConfig{
			ProbeDelayMS: int(schema.DefaultProbeDelay / time.Millisecond),
			DefaultCols:  80,
			DefaultRows:  24,
		},
		SSH: SSHConfig{
			KnownHosts:         filepath.Join(home, ".ssh", "known_hosts"),
			DialTimeoutSeconds: 10,
			Term:               "xterm-256color",
		},
		Keyboard: KeyboardConfig{
			Enhanced: false,
		},
		Assistant: AssistantConfig{
			ServerURL:      "http://192.168.136.8:11434",
			Model:          "gpt-oss:20b",
			TimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			File: filepath.Join(state, "ait.log"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ait", "config.yaml"), nil
}

// Engine converts the config into engine timings.
func (c Config) Engine() (schema.EngineConfig, error) {
	ttl := time.Duration(c.Suggest.CacheTTLMS) * time.Millisecond
	if c.Suggest.CacheTTLMS <= 0 {
		ttl = -1
	}
	return schema.NormalizeEngineConfig(schema.EngineConfig{
		InlineDebounce:  time.Duration(c.Suggest.InlineDebounceMS) * time.Millisecond,
		InlineLimit:     c.Suggest.InlineLimit,
		DropdownLimit:   c.Suggest.DropdownLimit,
		SuggestCacheTTL: ttl,
		CommitDelay:     time.Duration(c.Overlay.CommitDelayMS) * time.Millisecond,
		ProbeDelay:      time.Duration(c.Session.ProbeDelayMS) * time.Millisecond,
		DefaultSize:     schema.Dimensions{Cols: c.Session.DefaultCols, Rows: c.Session.DefaultRows},
	})
}

// DialTimeout returns the SSH dial timeout.
func (c SSHConfig) DialTimeout() time.Duration {
	if c.DialTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}
