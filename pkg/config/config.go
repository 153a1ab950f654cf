// Package config loads and persists terminput settings from JSON config
// files, with environment variable overrides for scripted use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	ConfigDirName  = ".terminput"
	ConfigFileName = "config.json"
)

// Interception mode values for Config.InterceptMode.
const (
	InterceptAuto     = "auto"
	InterceptKeypress = "keypress"
	InterceptRaw      = "raw"
)

// Extended protocol values for Config.ExtendedProtocol.
const (
	ExtendedAuto = "auto"
	ExtendedOn   = "on"
	ExtendedOff  = "off"
)

type Config struct {
	InterceptMode     string `json:"intercept_mode"`      // auto, keypress, raw
	ExtendedProtocol  string `json:"extended_protocol"`   // auto, on, off
	DetectTimeoutMs   int    `json:"detect_timeout_ms"`   // protocol probe deadline
	EscTimeoutMs      int    `json:"esc_timeout_ms"`      // stalled escape prefix flush
	BackslashWindowMs int    `json:"backslash_window_ms"` // backslash-return pairing window
	DragIdleMs        int    `json:"drag_idle_ms"`        // drag-drop burst settle time
	MonitorAddr       string `json:"monitor_addr"`
	LogFile           string `json:"log_file"`
}

func getHomeConfigPath() (string, string) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	configDir := filepath.Join(home, ConfigDirName)
	return configDir, filepath.Join(configDir, ConfigFileName)
}

func getCurrentConfigPath() (string, string) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", ""
	}
	configDir := filepath.Join(cwd, ConfigDirName)
	return configDir, filepath.Join(configDir, ConfigFileName)
}

func (cfg *Config) setDefaultValues() {
	if cfg.InterceptMode == "" {
		cfg.InterceptMode = InterceptAuto
	}
	if cfg.ExtendedProtocol == "" {
		cfg.ExtendedProtocol = ExtendedAuto
	}
	if cfg.DetectTimeoutMs == 0 {
		cfg.DetectTimeoutMs = 500
	}
	if cfg.EscTimeoutMs == 0 {
		cfg.EscTimeoutMs = 50
	}
	if cfg.BackslashWindowMs == 0 {
		cfg.BackslashWindowMs = 35
	}
	if cfg.DragIdleMs == 0 {
		cfg.DragIdleMs = 100
	}
	if cfg.MonitorAddr == "" {
		cfg.MonitorAddr = "localhost:7777"
	}
	if cfg.LogFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.LogFile = filepath.Join(home, ConfigDirName, "terminput.log")
		}
	}
}

// applyEnvOverrides lets scripted runs change behavior without editing the
// config file.
func (cfg *Config) applyEnvOverrides() {
	if v := os.Getenv("TERMINPUT_INTERCEPT"); v != "" {
		cfg.InterceptMode = v
	}
	if v := os.Getenv("TERMINPUT_EXTENDED"); v != "" {
		cfg.ExtendedProtocol = v
	}
	if v := os.Getenv("TERMINPUT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("TERMINPUT_DETECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.DetectTimeoutMs = ms
		}
	}
}

// Validate rejects values the session layer cannot act on.
func (cfg *Config) Validate() error {
	switch cfg.InterceptMode {
	case InterceptAuto, InterceptKeypress, InterceptRaw:
	default:
		return fmt.Errorf("invalid intercept_mode %q (want auto, keypress, or raw)", cfg.InterceptMode)
	}
	switch cfg.ExtendedProtocol {
	case ExtendedAuto, ExtendedOn, ExtendedOff:
	default:
		return fmt.Errorf("invalid extended_protocol %q (want auto, on, or off)", cfg.ExtendedProtocol)
	}
	if cfg.DetectTimeoutMs < 0 || cfg.EscTimeoutMs < 0 || cfg.BackslashWindowMs < 0 || cfg.DragIdleMs < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	return nil
}

// Duration accessors for the millisecond fields.

func (cfg *Config) DetectTimeout() time.Duration {
	return time.Duration(cfg.DetectTimeoutMs) * time.Millisecond
}

func (cfg *Config) EscTimeout() time.Duration {
	return time.Duration(cfg.EscTimeoutMs) * time.Millisecond
}

func (cfg *Config) BackslashWindow() time.Duration {
	return time.Duration(cfg.BackslashWindowMs) * time.Millisecond
}

func (cfg *Config) DragIdle() time.Duration {
	return time.Duration(cfg.DragIdleMs) * time.Millisecond
}

func loadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// Ensure all fields have a value, especially ones missing from older
	// configs.
	cfg.setDefaultValues()
	return &cfg, nil
}

func saveConfig(filePath string, cfg *Config) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

func createConfig(filePath string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaultValues()
	if err := saveConfig(filePath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrInitConfig resolves the active config: a .terminput/config.json in
// the working directory wins over the home directory one, and a missing
// config is created in the home directory with defaults. Environment
// overrides apply last.
func LoadOrInitConfig() (*Config, error) {
	_, currentConfigPath := getCurrentConfigPath()
	_, homeConfigPath := getHomeConfigPath()

	var cfg *Config
	if _, err := os.Stat(currentConfigPath); err == nil {
		loaded, lerr := loadConfig(currentConfigPath)
		if lerr != nil {
			return nil, lerr
		}
		cfg = loaded
	} else if _, err := os.Stat(homeConfigPath); err == nil {
		loaded, lerr := loadConfig(homeConfigPath)
		if lerr != nil {
			return nil, lerr
		}
		cfg = loaded
	} else {
		created, cerr := createConfig(homeConfigPath)
		if cerr != nil {
			return nil, fmt.Errorf("could not create initial config: %w", cerr)
		}
		cfg = created
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitConfig writes a default config into the working directory.
func InitConfig() error {
	_, currentConfigPath := getCurrentConfigPath()
	_, err := createConfig(currentConfigPath)
	return err
}
