package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseString(raw json.RawMessage, name string) (string, error) {
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return parsed.value, nil
}

func parseSecret(raw json.RawMessage, name string) (Secret, error) {
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	if !parsed.fromEnv {
		return "", fmt.Errorf("%s must use environment variable reference for security", name)
	}
	return Secret(parsed.value), nil
}

func parseDuration(s, name string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	// Use a raw type to parse references
	type rawServer struct {
		BaseURL        json.RawMessage   `json:"baseURL"`
		Addr           json.RawMessage   `json:"addr"`
		Name           string            `json:"name"`
		AllowedOrigins []json.RawMessage `json:"allowedOrigins"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Name = raw.Name
	if s.Name == "" {
		s.Name = "docfront"
	}

	if raw.BaseURL != nil {
		value, err := parseString(raw.BaseURL, "baseURL")
		if err != nil {
			return err
		}
		s.BaseURL = value
	}

	if raw.Addr != nil {
		value, err := parseString(raw.Addr, "addr")
		if err != nil {
			return err
		}
		s.Addr = value
	}

	if len(raw.AllowedOrigins) > 0 {
		values, err := ParseConfigValueSlice(raw.AllowedOrigins)
		if err != nil {
			return fmt.Errorf("parsing allowedOrigins: %w", err)
		}
		s.AllowedOrigins = values
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		GitHubClientID     json.RawMessage `json:"githubClientId"`
		GitHubClientSecret json.RawMessage `json:"githubClientSecret"`
		CallbackPath       string          `json:"callbackPath"`
		SessionKey         json.RawMessage `json:"sessionKey"`
		SessionTTL         string          `json:"sessionTtl"`
		CSRFTTL            string          `json:"csrfTtl"`
		DefaultRedirect    string          `json:"defaultRedirect"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.CallbackPath = raw.CallbackPath
	if a.CallbackPath == "" {
		a.CallbackPath = DefaultCallbackPath
	}
	a.DefaultRedirect = raw.DefaultRedirect
	if a.DefaultRedirect == "" {
		a.DefaultRedirect = DefaultRedirect
	}

	a.SessionTTL = DefaultSessionTTL
	if raw.SessionTTL != "" {
		ttl, err := parseDuration(raw.SessionTTL, "sessionTtl")
		if err != nil {
			return err
		}
		a.SessionTTL = ttl
	}

	a.CSRFTTL = DefaultCSRFTTL
	if raw.CSRFTTL != "" {
		ttl, err := parseDuration(raw.CSRFTTL, "csrfTtl")
		if err != nil {
			return err
		}
		a.CSRFTTL = ttl
	}

	if raw.GitHubClientID != nil {
		value, err := parseString(raw.GitHubClientID, "githubClientId")
		if err != nil {
			return err
		}
		a.GitHubClientID = value
	}

	// Parse secret fields
	if raw.GitHubClientSecret != nil {
		secret, err := parseSecret(raw.GitHubClientSecret, "githubClientSecret")
		if err != nil {
			return err
		}
		a.GitHubClientSecret = secret
	}

	if raw.SessionKey != nil {
		secret, err := parseSecret(raw.SessionKey, "sessionKey")
		if err != nil {
			return err
		}
		a.SessionKey = secret
	}

	if len(a.SessionKey) != SessionKeyLength {
		return fmt.Errorf("session key must be exactly %d bytes, got %d", SessionKeyLength, len(a.SessionKey))
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		PostgresDSN         json.RawMessage `json:"postgresDsn"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	if s.Kind == "" {
		s.Kind = StorageKindMemory
	}
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	// Apply defaults for Firestore configuration
	if s.Kind == StorageKindFirestore {
		if s.FirestoreDatabase == "" {
			s.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if s.FirestoreCollection == "" {
			s.FirestoreCollection = DefaultFirestoreCollection
		}
	}

	if raw.GCPProject != nil {
		value, err := parseString(raw.GCPProject, "gcpProject")
		if err != nil {
			return err
		}
		s.GCPProject = value
	}

	if raw.PostgresDSN != nil {
		secret, err := parseSecret(raw.PostgresDSN, "postgresDsn")
		if err != nil {
			return err
		}
		s.PostgresDSN = secret
	}

	return nil
}
