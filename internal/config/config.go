package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Duration is a time.Duration that reads and writes as a string like "500ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type TLSConfig struct {
	Mode     string `json:"mode"`     // "self-signed", "manual", or "" (disabled)
	CertFile string `json:"certFile"` // required for manual
	KeyFile  string `json:"keyFile"`  // required for manual
	CacheDir string `json:"cacheDir"` // for self-signed; defaults to ~/.agent-pulse/certs
}

type NotificationsConfig struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

type DecayConfig struct {
	TickInterval    Duration `json:"tickInterval"`
	IdleTimeout     Duration `json:"idleTimeout"`
	ThinkingTimeout Duration `json:"thinkingTimeout"`
}

type Config struct {
	Host          string              `json:"host"`
	Port          int                 `json:"port"`
	Token         string              `json:"token"`
	LogDir        string              `json:"logDir"`
	LogLevel      string              `json:"logLevel"`
	Decay         DecayConfig         `json:"decay"`
	TLS           TLSConfig           `json:"tls"`
	Notifications NotificationsConfig `json:"notifications"`
}

func Defaults() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     3456,
		LogDir:   filepath.Join(baseDir(), "logs"),
		LogLevel: "info",
		Decay: DecayConfig{
			TickInterval:    Duration(500 * time.Millisecond),
			IdleTimeout:     Duration(25 * time.Second),
			ThinkingTimeout: Duration(3 * time.Second),
		},
		TLS: TLSConfig{CacheDir: filepath.Join(baseDir(), "certs")},
	}
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-pulse")
}

// DefaultPath returns $AGENT_PULSE_CONFIG if set, otherwise
// ~/.agent-pulse/config.json.
func DefaultPath() string {
	if p := os.Getenv("AGENT_PULSE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(baseDir(), "config.json")
}

// Load reads path over Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions since it holds the
// shared token.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// EnsureToken generates and persists a token when cfg has none.
func EnsureToken(path string, cfg *Config) error {
	if cfg.Token != "" {
		return nil
	}
	return RotateToken(path, cfg)
}

// RotateToken replaces the token in cfg with a fresh one and saves it.
func RotateToken(path string, cfg *Config) error {
	tok, err := GenerateToken()
	if err != nil {
		return err
	}
	cfg.Token = tok
	return Save(path, *cfg)
}

// GenerateToken returns a cryptographically random 32-byte hex string.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
