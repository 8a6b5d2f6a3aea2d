package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

const (
	binaryPath     = "../cmd/docfront/docfront"
	fakeGitHubPort = "9091"
	docfrontURL    = "http://localhost:8080"
	csrfHeader     = "X-CSRF-Token"
	testSessionKey = "integration-session-key-32bytes!"
)

// testEnv is the environment every docfront process gets
func testEnv() []string {
	fakeGitHub := "http://localhost:" + fakeGitHubPort
	return []string{
		"DOCFRONT_ENV=dev",
		"GITHUB_CLIENT_ID=test-client-id",
		"GITHUB_CLIENT_SECRET=test-client-secret",
		"SESSION_KEY=" + testSessionKey,
		"GITHUB_OAUTH_AUTH_URL=" + fakeGitHub + "/login/oauth/authorize",
		"GITHUB_OAUTH_TOKEN_URL=" + fakeGitHub + "/login/oauth/access_token",
		"GITHUB_API_URL=" + fakeGitHub + "/api",
	}
}

func writeTestConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close temp config: %v", err)
	}
	return f.Name()
}

// buildTestConfig builds a complete docfront config map.
func buildTestConfig(storage map[string]any) map[string]any {
	if storage == nil {
		storage = map[string]any{"kind": "memory"}
	}
	return map[string]any{
		"version": "v0.0.1-DEV_EDITION",
		"server": map[string]any{
			"baseURL":        docfrontURL,
			"addr":           ":8080",
			"name":           "docfront-test",
			"allowedOrigins": []string{"http://localhost:3000"},
		},
		"auth": map[string]any{
			"githubClientId":     map[string]string{"$env": "GITHUB_CLIENT_ID"},
			"githubClientSecret": map[string]string{"$env": "GITHUB_CLIENT_SECRET"},
			"sessionKey":         map[string]string{"$env": "SESSION_KEY"},
			"sessionTtl":         "1h",
			"csrfTtl":            "24h",
		},
		"storage": storage,
	}
}

// trace logs a message if TRACE is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startDocfront starts the docfront binary with the given config
func startDocfront(t *testing.T, configPath string, extraEnv ...string) {
	cmd := exec.Command(binaryPath, "-config", configPath)

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, testEnv()...)
	cmd.Env = append(cmd.Env, extraEnv...)

	// Capture output to log file if DOCFRONT_LOG_FILE is set
	if logFile := os.Getenv("DOCFRONT_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start docfront: %v", err)
	}

	// Register cleanup that runs even if test is killed
	t.Cleanup(func() {
		stopDocfront(cmd)
	})
}

// stopDocfront stops the docfront server gracefully
func stopDocfront(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	// Try graceful shutdown first (SIGINT)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForDocfront waits for the docfront server to be ready
func waitForDocfront(t *testing.T) {
	t.Helper()
	for range 10 {
		resp, err := http.Get(docfrontURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(1 * time.Second)
	}
	t.Fatal("docfront failed to become ready after 10 seconds")
}

// browserClient behaves like a browser tab: it keeps cookies but lets the
// test inspect every redirect.
type browserClient struct {
	t      *testing.T
	client *http.Client
	jar    *cookiejar.Jar
}

func newBrowserClient(t *testing.T) *browserClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &browserClient{
		t:   t,
		jar: jar,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browserClient) do(method, path string, header http.Header) (*http.Response, []byte) {
	b.t.Helper()
	target := path
	if !strings.HasPrefix(path, "http") {
		target = docfrontURL + path
	}

	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		b.t.Fatalf("Failed to build request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("Failed to read body: %v", err)
	}
	trace(b.t, "%s %s -> %d %s", method, path, resp.StatusCode, body)
	return resp, body
}

// cookie returns the named cookie the jar would send to docfront
func (b *browserClient) cookie(name string) string {
	u, _ := url.Parse(docfrontURL)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// signIn walks /auth/start, the fake GitHub authorize page and the
// callback, returning where docfront finally redirected.
func (b *browserClient) signIn(login, redirect string) string {
	b.t.Helper()

	start := "/auth/start"
	if redirect != "" {
		start += "?redirect=" + url.QueryEscape(redirect)
	}
	resp, _ := b.do(http.MethodGet, start, nil)
	if resp.StatusCode != http.StatusFound {
		b.t.Fatalf("/auth/start returned %d", resp.StatusCode)
	}

	authorize, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		b.t.Fatalf("Invalid authorize URL: %v", err)
	}
	q := authorize.Query()
	q.Set("login", login)
	authorize.RawQuery = q.Encode()

	resp, _ = b.do(http.MethodGet, authorize.String(), nil)
	if resp.StatusCode != http.StatusFound {
		b.t.Fatalf("fake authorize returned %d", resp.StatusCode)
	}

	resp, body := b.do(http.MethodGet, resp.Header.Get("Location"), nil)
	if resp.StatusCode != http.StatusFound {
		b.t.Fatalf("callback returned %d: %s", resp.StatusCode, body)
	}
	return resp.Header.Get("Location")
}

// csrfToken fetches /auth/session and returns the token to echo
func (b *browserClient) csrfToken() string {
	b.t.Helper()
	resp, _ := b.do(http.MethodGet, "/auth/session", nil)
	token := resp.Header.Get(csrfHeader)
	if token == "" {
		b.t.Fatal("no CSRF token on /auth/session")
	}
	return token
}

type installationsResponse struct {
	Data []struct {
		ID           int64  `json:"id"`
		AccountLogin string `json:"accountLogin"`
		AccountType  string `json:"accountType"`
		AvatarURL    string `json:"avatarUrl"`
	} `json:"data"`
}

func (b *browserClient) installations() (int, installationsResponse) {
	b.t.Helper()
	resp, body := b.do(http.MethodGet, "/installations", nil)
	var out installationsResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &out); err != nil {
			b.t.Fatalf("Invalid installations body %s: %v", body, err)
		}
	}
	return resp.StatusCode, out
}

func withCSRF(token string) http.Header {
	return http.Header{csrfHeader: []string{token}}
}

func installationPath(id int64) string {
	return fmt.Sprintf("/installations/%d", id)
}
