package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type ProviderConfig struct {
	BaseURL       string `json:"base_url"`
	Model         string `json:"model"`
	APIKey        string `json:"api_key"`
	TimeoutMS     int    `json:"timeout_ms"`
	RetryAttempts int    `json:"retry_attempts"`
	RetryDelayMS  int    `json:"retry_delay_ms"`
}

type ArchiveConfig struct {
	// Folder is the vault directory archives are written into.
	Folder string `json:"folder"`
	// MinEntries / MinContentChars gate near-empty exchanges from archival.
	MinEntries      int `json:"min_entries"`
	MinContentChars int `json:"min_content_chars"`
	// ToolDenylist names tools whose transcript entries are dropped from archives.
	ToolDenylist []string `json:"tool_denylist"`
	// MetadataModel overrides the chat model for metadata generation.
	MetadataModel string `json:"metadata_model"`
}

type RuntimeConfig struct {
	VaultRoot        string `json:"vault_root"`
	IndexPath        string `json:"index_path"`
	LegacyIndexPath  string `json:"legacy_index_path"`
	MaxSteps         int    `json:"max_steps"`
	DeltaTokenBudget int    `json:"delta_token_budget"`
	Debug            bool   `json:"debug"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Archive  ArchiveConfig  `json:"archive"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Provider.RetryDelayMS) * time.Millisecond
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			TimeoutMS:     120000,
			RetryAttempts: 2,
			RetryDelayMS:  1000,
		},
		Archive: ArchiveConfig{
			Folder:          "chats",
			MinEntries:      2,
			MinContentChars: 20,
		},
		Runtime: RuntimeConfig{
			VaultRoot:        "~/hermes-vault",
			IndexPath:        "~/.hermes/archives.db",
			LegacyIndexPath:  "~/.hermes/archives.json",
			MaxSteps:         32,
			DeltaTokenBudget: 512,
		},
	}
}

// fileConfig mirrors Config with pointer sections so an absent section leaves
// the default untouched.
type fileConfig struct {
	Provider *fileProviderConfig `json:"provider"`
	Archive  *fileArchiveConfig  `json:"archive"`
	Runtime  *fileRuntimeConfig  `json:"runtime"`
}

type fileProviderConfig struct {
	BaseURL       *string `json:"base_url"`
	Model         *string `json:"model"`
	APIKey        *string `json:"api_key"`
	TimeoutMS     *int    `json:"timeout_ms"`
	RetryAttempts *int    `json:"retry_attempts"`
	RetryDelayMS  *int    `json:"retry_delay_ms"`
}

type fileArchiveConfig struct {
	Folder          *string   `json:"folder"`
	MinEntries      *int      `json:"min_entries"`
	MinContentChars *int      `json:"min_content_chars"`
	ToolDenylist    *[]string `json:"tool_denylist"`
	MetadataModel   *string   `json:"metadata_model"`
}

type fileRuntimeConfig struct {
	VaultRoot        *string `json:"vault_root"`
	IndexPath        *string `json:"index_path"`
	LegacyIndexPath  *string `json:"legacy_index_path"`
	MaxSteps         *int    `json:"max_steps"`
	DeltaTokenBudget *int    `json:"delta_token_budget"`
	Debug            *bool   `json:"debug"`
}

// Load resolves the configuration once at startup: defaults, then the config
// file (missing file is fine), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("HERMES_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func findConfigPath() string {
	candidates := []string{"hermes.config.json"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".hermes", "config.json"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fc)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		p := fc.Provider
		setString(&cfg.Provider.BaseURL, p.BaseURL)
		setString(&cfg.Provider.Model, p.Model)
		setString(&cfg.Provider.APIKey, p.APIKey)
		setInt(&cfg.Provider.TimeoutMS, p.TimeoutMS)
		setInt(&cfg.Provider.RetryAttempts, p.RetryAttempts)
		setInt(&cfg.Provider.RetryDelayMS, p.RetryDelayMS)
	}
	if fc.Archive != nil {
		a := fc.Archive
		setString(&cfg.Archive.Folder, a.Folder)
		setInt(&cfg.Archive.MinEntries, a.MinEntries)
		setInt(&cfg.Archive.MinContentChars, a.MinContentChars)
		if a.ToolDenylist != nil {
			cfg.Archive.ToolDenylist = *a.ToolDenylist
		}
		setString(&cfg.Archive.MetadataModel, a.MetadataModel)
	}
	if fc.Runtime != nil {
		r := fc.Runtime
		setString(&cfg.Runtime.VaultRoot, r.VaultRoot)
		setString(&cfg.Runtime.IndexPath, r.IndexPath)
		setString(&cfg.Runtime.LegacyIndexPath, r.LegacyIndexPath)
		setInt(&cfg.Runtime.MaxSteps, r.MaxSteps)
		setInt(&cfg.Runtime.DeltaTokenBudget, r.DeltaTokenBudget)
		if r.Debug != nil {
			cfg.Runtime.Debug = *r.Debug
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("HERMES_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HERMES_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("HERMES_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if cfg.Provider.APIKey == "" {
		if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
			cfg.Provider.APIKey = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("HERMES_VAULT_ROOT")); v != "" {
		cfg.Runtime.VaultRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("HERMES_MAX_STEPS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid HERMES_MAX_STEPS: %q", v)
		}
		cfg.Runtime.MaxSteps = n
	}
	return cfg, nil
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}
