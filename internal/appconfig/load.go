package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("vault.store_path", cfg.Vault.StorePath)
	v.SetDefault("vault.secret_dir", cfg.Vault.SecretDir)
	v.SetDefault("suggest.inline_debounce_ms", cfg.Suggest.InlineDebounceMS)
	v.SetDefault("suggest.inline_limit", cfg.Suggest.InlineLimit)
	v.SetDefault("suggest.dropdown_limit", cfg.Suggest.DropdownLimit)
	v.SetDefault("suggest.cache_ttl_ms", cfg.Suggest.CacheTTLMS)
	v.SetDefault("overlay.commit_delay_ms", cfg.Overlay.CommitDelayMS)
	v.SetDefault("session.probe_delay_ms", cfg.Session.ProbeDelayMS)
	v.SetDefault("session.default_cols", cfg.Session.DefaultCols)
	v.SetDefault("session.default_rows", cfg.Session.DefaultRows)
	v.SetDefault("ssh.known_hosts", cfg.SSH.KnownHosts)
	v.SetDefault("ssh.dial_timeout_seconds", cfg.SSH.DialTimeoutSeconds)
	v.SetDefault("ssh.term", cfg.SSH.Term)
	v.SetDefault("keyboard.enhanced", cfg.Keyboard.Enhanced)
	v.SetDefault("assistant.server_url", cfg.Assistant.ServerURL)
	v.SetDefault("assistant.model", cfg.Assistant.Model)
	v.SetDefault("assistant.timeout_seconds", cfg.Assistant.TimeoutSeconds)
	v.SetDefault("logging.file", cfg.Logging.File)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// isNotFound reports whether err means the config file does not exist.
// viper reports a missing explicit file as an fs error rather than
// ConfigFileNotFoundError.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if cfg.Suggest.InlineLimit > cfg.Suggest.DropdownLimit && cfg.Suggest.DropdownLimit > 0 {
		return fmt.Errorf("suggest.inline_limit must not exceed suggest.dropdown_limit")
	}
	if cfg.Session.DefaultCols < 0 || cfg.Session.DefaultRows < 0 {
		return fmt.Errorf("session.default_cols and session.default_rows must not be negative")
	}
	serverURL := strings.TrimSpace(cfg.Assistant.ServerURL)
	if serverURL != "" {
		parsed, err := url.Parse(serverURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("assistant.server_url must include scheme and host (e.g. http://localhost:11434)")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.DatabasePath = expandEnv(cfg.DatabasePath)
	cfg.Vault.StorePath = expandEnv(cfg.Vault.StorePath)
	cfg.Vault.SecretDir = expandEnv(cfg.Vault.SecretDir)
	cfg.SSH.KnownHosts = expandEnv(cfg.SSH.KnownHosts)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
