// Package config reads the tool's non-secret settings from a TOML file.
// Secrets (client id/secret, tokens) never live here — they stay in the
// KEY=value credential file next to it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for treadmill2strava.
type Config struct {
	// CredentialsFile is the KEY=value file holding client id/secret and tokens.
	CredentialsFile string `toml:"credentials_file"`

	OCR      OCRConfig      `toml:"ocr"`
	Strava   StravaConfig   `toml:"strava"`
	Watch    WatchConfig    `toml:"watch"`
	History  HistoryConfig  `toml:"history"`
	Activity ActivityConfig `toml:"activity"`
}

// OCRConfig selects and parameterizes the text-extraction engine.
type OCRConfig struct {
	Engine         string `toml:"engine"` // "vision" or "tesseract"
	VisionAPIKey   string `toml:"vision_api_key"`
	VisionEndpoint string `toml:"vision_endpoint,omitempty"` // override for testing
}

// StravaConfig covers the authorization flow details.
type StravaConfig struct {
	RedirectURI string `toml:"redirect_uri"`
	// CallbackAddr, when set, serves the redirect locally instead of asking
	// the user to paste the redirected URL (redirect_uri must then point at
	// http://<callback_addr><callback_path>).
	CallbackAddr string `toml:"callback_addr,omitempty"`
	CallbackPath string `toml:"callback_path,omitempty"`
}

// WatchConfig configures drop-in directory processing.
type WatchConfig struct {
	Dir string `toml:"dir"`
}

// HistoryConfig locates the upload journal.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// ActivityConfig holds the default upload texts.
type ActivityConfig struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// NewConfig returns a Config populated with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		CredentialsFile: filepath.Join(baseDir, ".env"),
		OCR:             OCRConfig{Engine: "vision"},
		Strava: StravaConfig{
			RedirectURI:  "https://tekksparrow-programs.github.io/website/",
			CallbackPath: "/callback",
		},
		History: HistoryConfig{Path: filepath.Join(baseDir, "uploads.db")},
		Activity: ActivityConfig{
			Title:       "Treadmill Run",
			Description: "Uploaded from TreadmilltoStrava",
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "treadmill2strava", "config.toml"), nil
}

// DefaultBaseDir returns the per-user data directory for the credential file
// and journal.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, ".treadmill2strava"), nil
}

// ReadFromFile loads and validates the config at path.
func ReadFromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields the rest of the tool relies on.
func (c *Config) Validate() error {
	if c.CredentialsFile == "" {
		return fmt.Errorf("credentials_file must be set")
	}
	switch c.OCR.Engine {
	case "vision", "tesseract":
	case "":
		return fmt.Errorf("ocr.engine must be set")
	default:
		return fmt.Errorf("unknown ocr.engine %q (want vision or tesseract)", c.OCR.Engine)
	}
	// vision_api_key is checked when the engine is built, so `config list`
	// still works on a fresh config.
	return nil
}

// Init writes cfg to path, refusing to clobber an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
