package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Backend names the store implementation the client talks to.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Config holds the resolved client settings.
type Config struct {
	Backend        Backend
	APIURL         string
	DataDir        string
	SearchDelay    time.Duration
	RequestTimeout time.Duration
}

const (
	defaultConfigPath     = "~/.config/rebbit/config.toml"
	defaultDataDir        = "~/.local/share/rebbit"
	defaultAPIURL         = "http://localhost:8080/api"
	defaultBackend        = BackendLocal
	defaultSearchDelay    = 300 * time.Millisecond
	defaultRequestTimeout = 5 * time.Second
)

// Environment overrides, applied after the file.
const (
	EnvBackend = "REBBIT_BACKEND"
	EnvAPIURL  = "REBBIT_API_URL"
	EnvDataDir = "REBBIT_DATA_DIR"
)

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		Backend:        defaultBackend,
		APIURL:         defaultAPIURL,
		DataDir:        mustExpand(defaultDataDir),
		SearchDelay:    defaultSearchDelay,
		RequestTimeout: defaultRequestTimeout,
	}
}

// Load reads the config file at path (or the default location), then applies
// .env and environment overrides. A missing file yields defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := readFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	loadDotEnv(filepath.Dir(resolved))
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Backend         string `toml:"backend"`
		APIURL          string `toml:"api_url"`
		DataDir         string `toml:"data_dir"`
		SearchDelayMS   int    `toml:"search_delay_ms"`
		RequestTimeoutS int    `toml:"request_timeout_s"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.Backend); v != "" {
		backend, err := ParseBackend(v)
		if err != nil {
			return err
		}
		cfg.Backend = backend
	}
	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	if raw.SearchDelayMS > 0 {
		cfg.SearchDelay = time.Duration(raw.SearchDelayMS) * time.Millisecond
	}
	if raw.RequestTimeoutS > 0 {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeoutS) * time.Second
	}
	return nil
}

// loadDotEnv loads the first .env file found next to the config file or in
// the working directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, location := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if err := godotenv.Load(location); err == nil {
			return
		}
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvBackend)); v != "" {
		backend, err := ParseBackend(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackend, err)
		}
		cfg.Backend = backend
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	return nil
}

// ParseBackend validates a backend name.
func ParseBackend(raw string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(raw))); b {
	case BackendLocal, BackendRemote:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want local or remote)", raw)
	}
}

// LogPath returns the client log file.
func (c Config) LogPath() string {
	return filepath.Join(c.dataDir(), "rebbit.log")
}

// AssetDir returns where the local backend stores uploaded images.
func (c Config) AssetDir() string {
	return filepath.Join(c.dataDir(), "uploads")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.DataDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
