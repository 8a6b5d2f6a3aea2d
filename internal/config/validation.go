package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Verdict is the one-line outcome; warnings fail validation too
func (v *ValidationResult) Verdict() string {
	switch {
	case len(v.Errors) > 0:
		return "FAIL"
	case len(v.Warnings) > 0:
		return "FAIL (warnings present)"
	default:
		return "PASS"
	}
}

// Err is nil only when there are neither errors nor warnings
func (v *ValidationResult) Err() error {
	if len(v.Errors) == 0 && len(v.Warnings) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(v.Errors), len(v.Warnings))
}

// Print writes the human-readable report for the file at path
func (v *ValidationResult) Print(w io.Writer, path string) {
	fmt.Fprintf(w, "Validating: %s\n", path)
	printIssues(w, "Errors", v.Errors)
	printIssues(w, "Warnings", v.Warnings)
	fmt.Fprintf(w, "\nResult: %s\n", v.Verdict())
}

func printIssues(w io.Writer, title string, issues []ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// String renders the issue as "path: message", or just the message at the root
func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func (v *ValidationResult) addError(path, message string) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: message})
}

func (v *ValidationResult) addWarning(path, message string) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: message})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for config already in memory
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	// Check JSON syntax
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", fmt.Sprintf("invalid JSON: %v", err))
		return result
	}

	// Check for bash-style syntax
	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", fmt.Sprintf("version field is required. Hint: Add \"version\": %q", VersionPrefix))
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", fmt.Sprintf("unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix))
	}

	validateServerStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}

	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://docs.example.com\"")
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if origins, ok := server["allowedOrigins"]; ok {
		if _, isList := origins.([]any); !isList {
			result.addError("server.allowedOrigins", "allowedOrigins must be an array of origins")
		}
	}
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	for _, name := range []string{"githubClientId", "githubClientSecret", "sessionKey"} {
		if _, ok := auth[name]; !ok {
			result.addError("auth."+name, fmt.Sprintf("%s is required", name))
		}
	}

	for _, name := range secretFields["auth"] {
		checkSecretRef(auth, "auth", name, result)
	}

	for _, name := range []string{"sessionTtl", "csrfTtl"} {
		raw, ok := auth[name]
		if !ok {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			result.addError("auth."+name, fmt.Sprintf("%s must be a duration string. Example: \"24h\"", name))
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			result.addError("auth."+name, fmt.Sprintf("invalid duration '%s'", s))
		}
	}

	if p, ok := auth["callbackPath"].(string); ok && !strings.HasPrefix(p, "/") {
		result.addError("auth.callbackPath", "callbackPath must start with /")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "storage is not configured; using in-memory storage (data is lost on restart)")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	case StorageKindPostgres:
		if _, ok := storage["postgresDsn"]; !ok {
			result.addError("storage.postgresDsn", "postgresDsn is required when using postgres storage")
		}
	default:
		result.addError("storage.kind", fmt.Sprintf("unknown storage kind '%s' - use memory, firestore, or postgres", kind))
	}

	for _, name := range secretFields["storage"] {
		checkSecretRef(storage, "storage", name, result)
	}
}

func checkSecretRef(section map[string]any, sectionName, name string, result *ValidationResult) {
	value, ok := section[name]
	if !ok {
		return
	}
	if _, isString := value.(string); isString {
		result.addError(sectionName+"."+name, fmt.Sprintf("%s must use {\"$env\": \"VAR_NAME\"} - secrets cannot be inlined", name))
		return
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			result.addError(sectionName+"."+name, fmt.Sprintf("%s must use {\"$env\": \"VAR_NAME\"} format", name))
		}
	}
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName))
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

// DefaultConfig returns the config written by -config-init
func DefaultConfig() map[string]any {
	return map[string]any{
		"version": VersionPrefix,
		"server": map[string]any{
			"baseURL":        "https://docs.yourcompany.com",
			"addr":           ":8080",
			"name":           "docfront",
			"allowedOrigins": []string{"https://docs.yourcompany.com"},
		},
		"auth": map[string]any{
			"githubClientId":     map[string]string{"$env": "GITHUB_CLIENT_ID"},
			"githubClientSecret": map[string]string{"$env": "GITHUB_CLIENT_SECRET"},
			"callbackPath":       DefaultCallbackPath,
			"sessionKey":         map[string]string{"$env": "SESSION_KEY"},
			"sessionTtl":         "24h",
			"csrfTtl":            "168h",
			"defaultRedirect":    DefaultRedirect,
		},
		"storage": map[string]any{
			"kind": "memory",
		},
	}
}
