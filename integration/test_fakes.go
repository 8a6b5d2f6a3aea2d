package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// fakeUser is a GitHub account known to the fake server
type fakeUser struct {
	ID            int64
	Login         string
	Name          string
	Installations []fakeInstallation
}

type fakeInstallation struct {
	ID      int64
	Account string
	Type    string
}

// fakeUsers are keyed by login; code "<login>-code" signs in as that user
var fakeUsers = map[string]fakeUser{
	"alice": {
		ID: 1001, Login: "alice", Name: "Alice",
		Installations: []fakeInstallation{
			{ID: 501, Account: "alice", Type: "User"},
			{ID: 502, Account: "acme", Type: "Organization"},
		},
	},
	"bob": {
		ID: 2002, Login: "bob", Name: "Bob",
		Installations: []fakeInstallation{
			{ID: 601, Account: "bob", Type: "User"},
		},
	},
}

// FakeGitHubServer provides a fake GitHub OAuth and REST API for testing
type FakeGitHubServer struct {
	server *http.Server
	port   string
}

// NewFakeGitHubServer creates a new fake GitHub server
func NewFakeGitHubServer(port string) *FakeGitHubServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		login := r.URL.Query().Get("login")
		if login == "" {
			login = "alice"
		}
		http.Redirect(w, r, fmt.Sprintf("%s?code=%s-code&state=%s", redirectURI, login, state), http.StatusFound)
	})

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		login, ok := strings.CutSuffix(r.FormValue("code"), "-code")
		if _, known := fakeUsers[login]; !ok || !known {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "bad_verification_code",
				"error_description": "The code passed is incorrect or expired.",
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": login + "-token",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	})

	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromToken(r)
		if !ok {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      user.Login + "@example.com",
			"avatar_url": "https://avatars.example.com/" + user.Login,
		})
	})

	mux.HandleFunc("/api/user/installations", func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromToken(r)
		if !ok {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			return
		}

		installations := []map[string]any{}
		if r.URL.Query().Get("page") == "1" {
			for _, inst := range user.Installations {
				installations = append(installations, map[string]any{
					"id": inst.ID,
					"account": map[string]any{
						"login":      inst.Account,
						"type":       inst.Type,
						"avatar_url": "https://avatars.example.com/" + inst.Account,
					},
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_count":   len(user.Installations),
			"installations": installations,
		})
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return &FakeGitHubServer{
		server: server,
		port:   port,
	}
}

func userFromToken(r *http.Request) (fakeUser, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return fakeUser{}, false
	}
	login, ok := strings.CutSuffix(token, "-token")
	if !ok {
		return fakeUser{}, false
	}
	user, ok := fakeUsers[login]
	return user, ok
}

// Start starts the fake GitHub server
func (m *FakeGitHubServer) Start() error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop stops the fake GitHub server
func (m *FakeGitHubServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
