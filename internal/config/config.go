/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	applog "storymagic/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
// In-app preferences (theme, language, ...) live in the settings table, not here;
// this file only covers what must be known before the database is open.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type StorageConfig struct {
	// DBPath overrides the default library location when non-empty.
	DBPath    string `yaml:"db_path"`
	BackupDir string `yaml:"backup_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type ExportConfig struct {
	PageSize string `yaml:"page_size"` // "A4" | "Letter" | "A5"
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Storage       StorageConfig `yaml:"storage"`
	Logging       LoggingConfig `yaml:"logging"`
	Export        ExportConfig  `yaml:"export"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Export:        ExportConfig{PageSize: "A4"},
	}
}

// Env var names used as overrides.
const (
	EnvDBPath    = "SM_DB_PATH"
	EnvBackupDir = "SM_BACKUP_DIR"
	EnvPageSize  = "SM_EXPORT_PAGE_SIZE"
	// Logging envs, shared with the log package.
	EnvLogLevel  = applog.EnvLevel
	EnvLogFormat = applog.EnvFormat
	EnvLogSource = applog.EnvSource
	EnvLogFile   = applog.EnvFile
)

const appDirName = "StoryMagic"

// userConfigDir is overridden in tests.
var userConfigDir = os.UserConfigDir

// ConfigPath returns the per-user config file path (next to the library database).
func ConfigPath() (string, error) {
	base, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	if strings.TrimSpace(base) == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, appDirName, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A missing file is not an error; a malformed one is.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if v := strings.TrimSpace(src.Storage.DBPath); v != "" {
		dst.Storage.DBPath = v
	}
	if v := strings.TrimSpace(src.Storage.BackupDir); v != "" {
		dst.Storage.BackupDir = v
	}
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
	if v := strings.TrimSpace(src.Export.PageSize); v != "" {
		dst.Export.PageSize = v
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackupDir)); v != "" {
		cfg.Storage.BackupDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPageSize)); v != "" {
		cfg.Export.PageSize = v
	}
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

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "storage.db_path":
		env = EnvDBPath
	case "storage.backup_dir":
		env = EnvBackupDir
	case "export.page_size":
		env = EnvPageSize
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// LogOptions converts the logging section for applog.Init.
func (c AppConfig) LogOptions() applog.Options {
	return applog.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.Source,
		File:      c.Logging.File,
	}
}

// Providers whose API keys the settings screen manages. Keys never touch
// the YAML file or the settings table; they live in the OS keychain.
const (
	ProviderGemini    = "gemini"
	ProviderReplicate = "replicate"
)

const keyringService = "StoryMagic"

var ErrUnknownProvider = errors.New("unknown API key provider")

// TokenStore abstracts the keyring so it can be stubbed in tests.
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

var tokenStore TokenStore = osKeyring{}

func apiKeyName(provider string) (string, error) {
	switch provider {
	case ProviderGemini, ProviderReplicate:
		return provider + "_api_key", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

// APIKey returns the stored key for provider, or "" if none is stored.
func APIKey(provider string) (string, error) {
	name, err := apiKeyName(provider)
	if err != nil {
		return "", err
	}
	v, err := tokenStore.Get(keyringService, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetAPIKey stores key for provider. An empty key removes it.
func SetAPIKey(provider, key string) error {
	name, err := apiKeyName(provider)
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		if err := tokenStore.Delete(keyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}
	return tokenStore.Set(keyringService, name, key)
}
