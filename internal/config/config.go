/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config holds the per-user settings of the storyboard tools: the
// default sheet layout, backend connection, server and logging options.
// The YAML file is user-editable; GSB_* environment variables override it at
// runtime and are never written back. The backend token lives in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
)

// CurrentVersion is bumped when the structure changes in a backward-incompatible way.
const CurrentVersion = 1

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
	ShotDuration   int    `yaml:"shot_duration"` // animatic frames per panel
}

// ServerConfig configures gostoryboardd. An empty DatabaseURL selects the file store under DataDir.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
	// Secret signs API tokens and AdminKey is exchanged for one. Neither is
	// written to the file; they come from GSB_SERVER_SECRET and GSB_SERVER_ADMIN_KEY.
	Secret   string `yaml:"-"`
	AdminKey string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Layout        layout.Config `yaml:"layout"`
	Backend       BackendConfig `yaml:"backend"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		General:       GeneralConfig{TelemetryOptIn: false, ShotDuration: 24},
		Layout:        layout.Defaults(),
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, TLSInsecure: false},
		Server:        ServerConfig{Addr: ":8080", DataDir: defaultDataDir()},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "GSB_CONFIG"
	EnvBackendURL       = "GSB_BACKEND_URL"
	EnvBackendTimeoutMs = "GSB_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "GSB_TLS_INSECURE"
	EnvBackendToken     = "GSB_TOKEN"
	EnvTelemetryOptIn   = "GSB_TELEMETRY_OPT_IN"
	EnvTelemetryURL     = "GSB_TELEMETRY_URL"
	EnvServerAddr       = "GSB_SERVER_ADDR"
	EnvServerDataDir    = "GSB_DATA_DIR"
	EnvServerSecret     = "GSB_SERVER_SECRET"
	EnvServerAdminKey   = "GSB_SERVER_ADMIN_KEY"
	EnvDatabaseURL      = "GSB_DATABASE_URL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GSB_LOG_LEVEL"
	EnvLogFormat = "GSB_LOG_FORMAT"
	EnvLogSource = "GSB_LOG_SOURCE"
	EnvLogFile   = "GSB_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GoStoryboard"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(base, "GoStoryboard")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoStoryboard")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			return filepath.Join(x, "gostoryboard")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "gostoryboard")
	}
}

func defaultDataDir() string {
	d := configDir()
	if d == "" {
		return "gostoryboard-data"
	}
	return filepath.Join(d, "boards")
}

// ConfigPath returns the per-user config file path. GSB_CONFIG points elsewhere.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base := configDir()
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if err := loadFileInto(&cfg, path); err != nil {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	if err := layout.Validate(cfg.Layout); err != nil {
		return cfg, "", fmt.Errorf("config %s: %w", path, err)
	}
	tok := strings.TrimSpace(os.Getenv(EnvBackendToken))
	if tok == "" {
		var kerr error
		tok, kerr = tokenStore.Get(keyringService, keyringToken)
		if kerr != nil && !errors.Is(kerr, keyring.ErrNotFound) {
			applog.WithComponent("config").Debug("keyring unavailable", slog.Any("err", kerr))
		}
	}
	return cfg, tok, nil
}

// loadFileInto merges the YAML file at path over cfg. A missing file is not an error.
func loadFileInto(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	// Decoding over a copy of the defaults keeps unspecified layout fields intact.
	fileCfg := AppConfig{Layout: cfg.Layout}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if fileCfg.ConfigVersion > CurrentVersion {
		return fmt.Errorf("config %s: version %d is newer than supported %d", path, fileCfg.ConfigVersion, CurrentVersion)
	}
	mergeInto(cfg, &fileCfg)
	return nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := layout.Validate(cfg.Layout); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.ConfigVersion = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// ForgetToken removes the stored backend token.
func ForgetToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.Layout = src.Layout
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if strings.TrimSpace(src.General.TelemetryURL) != "" {
		dst.General.TelemetryURL = strings.TrimSpace(src.General.TelemetryURL)
	}
	if src.General.ShotDuration > 0 {
		dst.General.ShotDuration = src.General.ShotDuration
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.DataDir != "" {
		dst.Server.DataDir = src.Server.DataDir
	}
	if src.Server.DatabaseURL != "" {
		dst.Server.DatabaseURL = src.Server.DatabaseURL
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryURL)); v != "" {
		cfg.General.TelemetryURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerDataDir)); v != "" {
		cfg.Server.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerSecret)); v != "" {
		cfg.Server.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAdminKey)); v != "" {
		cfg.Server.AdminKey = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.telemetry_url":    EnvTelemetryURL,
	"server.addr":              EnvServerAddr,
	"server.data_dir":          EnvServerDataDir,
	"server.database_url":      EnvDatabaseURL,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend request timeout, falling back to the default for non-positive values.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// LogOptions converts the logging section into logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
