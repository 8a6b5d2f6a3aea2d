package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/docfront/internal/browserauth"
	"github.com/dgellow/docfront/internal/log"
)

// VersionPrefix is the config version every file must declare
const VersionPrefix = "v0.0.1-DEV_EDITION"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes config bytes the way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists the config keys that may only be given as env references
var secretFields = map[string][]string{
	"auth":    {"githubClientSecret", "sessionKey"},
	"storage": {"postgresDsn"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for section, names := range secretFields {
		fields, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range names {
			value, exists := fields[name]
			if !exists {
				continue
			}
			// Check if it's a string (bad) or a map (good - env ref)
			if _, isString := value.(string); isString {
				return fmt.Errorf("%s must use environment variable reference for security", name)
			}
			if refMap, isMap := value.(map[string]any); isMap {
				if _, hasEnv := refMap["$env"]; !hasEnv {
					return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
				}
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	base, err := url.Parse(config.Server.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("server.baseURL must be an absolute URL")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if base.Scheme != "https" {
		log.LogWarnWithFields("config", "Base URL is not HTTPS; cookies are only marked Secure outside development", map[string]any{
			"baseURL": config.Server.BaseURL,
		})
	}

	return nil
}

func validateAuthConfig(auth *AuthConfig) error {
	if auth.GitHubClientID == "" {
		return fmt.Errorf("githubClientId is required")
	}
	if auth.GitHubClientSecret == "" {
		return fmt.Errorf("githubClientSecret is required")
	}
	if len(auth.SessionKey) != SessionKeyLength {
		return fmt.Errorf("sessionKey must be exactly %d characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", SessionKeyLength, len(auth.SessionKey))
	}
	if !strings.HasPrefix(auth.CallbackPath, "/") {
		return fmt.Errorf("callbackPath must start with /")
	}
	if auth.SessionTTL <= 0 {
		return fmt.Errorf("sessionTtl must be positive")
	}
	if auth.CSRFTTL <= 0 {
		return fmt.Errorf("csrfTtl must be positive")
	}
	if auth.CSRFTTL < auth.SessionTTL {
		log.LogWarn("CSRF token lifetime is shorter than the session lifetime; clients must refetch /auth/session")
	}
	if !browserauth.IsSafeRedirect(auth.DefaultRedirect) {
		return fmt.Errorf("defaultRedirect must be a same-origin path, got %q", auth.DefaultRedirect)
	}
	return nil
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	case StorageKindPostgres:
		if storage.PostgresDSN == "" {
			return fmt.Errorf("postgresDsn is required when using postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory, firestore, or postgres)", storage.Kind)
	}
	return nil
}
