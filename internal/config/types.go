package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the persistence backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
	StorageKindPostgres  StorageKind = "postgres"
)

const (
	DefaultCallbackPath        = "/auth/callback"
	DefaultRedirect            = "/repos"
	DefaultSessionTTL          = 24 * time.Hour
	DefaultCSRFTTL             = 7 * 24 * time.Hour
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "docfront_installations"
	SessionKeyLength           = 32
)

// ServerConfig represents the HTTP listener configuration with resolved values
type ServerConfig struct {
	BaseURL        string   `json:"baseURL"`
	Addr           string   `json:"addr"`
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins"` // For CORS validation
}

// AuthConfig represents the GitHub login and browser session configuration
type AuthConfig struct {
	GitHubClientID     string        `json:"githubClientId"`
	GitHubClientSecret Secret        `json:"githubClientSecret"`
	CallbackPath       string        `json:"callbackPath"`
	SessionKey         Secret        `json:"sessionKey"` // seals the session cookie
	SessionTTL         time.Duration `json:"sessionTtl"`
	CSRFTTL            time.Duration `json:"csrfTtl"`
	DefaultRedirect    string        `json:"defaultRedirect"`
}

// StorageConfig represents the persistence backend configuration
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
	PostgresDSN         Secret      `json:"postgresDsn,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Server  ServerConfig  `json:"server"`
	Auth    AuthConfig    `json:"auth"`
	Storage StorageConfig `json:"storage"`
}

// CallbackURL is the absolute OAuth redirect URI registered with GitHub
func (c *Config) CallbackURL() (string, error) {
	return url.JoinPath(c.Server.BaseURL, c.Auth.CallbackPath)
}

// RawConfigValue represents a value that could be a string or env ref.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value   string
	fromEnv bool
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	// Try reference object
	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	// Check for $env reference
	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value, fromEnv: true}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}

// ParseConfigValueSlice parses a slice that may contain references
func ParseConfigValueSlice(raw []json.RawMessage) ([]string, error) {
	values := make([]string, len(raw))

	for i, item := range raw {
		parsed, err := ParseConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", i, err)
		}
		values[i] = parsed.value
	}

	return values, nil
}
