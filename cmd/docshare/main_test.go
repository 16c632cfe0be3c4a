package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docshare-api/pkg/client"
)

type clipboardStub struct{ text string }

func (c *clipboardStub) WriteText(_ context.Context, text string) error {
	c.text = text
	return nil
}

func respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func runCLI(t *testing.T, srv *httptest.Server, sessionPath, stdin string, a *app, args ...string) (string, string, error) {
	t.Helper()
	if a == nil {
		a = &app{}
	}
	cmd := newRootCommandFor(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api", srv.URL + "/api", "--origin", "https://docs.example.com", "--session", sessionPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestLoginThenWhoami(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token":
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"access_token": "jwt-1", "token_type": "bearer", "expires_in": 1800,
				"user": map[string]interface{}{"id": "u1", "email": "owner@example.com", "username": "owner"},
			}})
		case "/api/users/me":
			if r.Header.Get("Authorization") != "Bearer jwt-1" {
				respond(w, http.StatusUnauthorized, map[string]interface{}{"error": map[string]interface{}{"code": "UNAUTHORIZED", "message": "missing token"}})
				return
			}
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"id": "u1", "email": "owner@example.com", "username": "owner"}})
		}
	}))
	defer srv.Close()
	session := filepath.Join(t.TempDir(), "session.json")

	out, _, err := runCLI(t, srv, session, "secret\n", nil, "login", "--email", "owner@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as owner")

	out, _, err = runCLI(t, srv, session, "", nil, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "owner (u1)")

	_, _, err = runCLI(t, srv, session, "", nil, "logout")
	require.NoError(t, err)
	_, errOut, err := runCLI(t, srv, session, "", nil, "whoami")
	require.Error(t, err)
	assert.Contains(t, errOut, "docshare login")
}

func TestShareEnableCopiesLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/documents/doc-1/share":
			respond(w, http.StatusNotFound, map[string]interface{}{"error": map[string]interface{}{"code": "NOT_FOUND", "message": "share not found"}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/documents/doc-1/share":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, client.ShareKindPassword, body["share_type"])
			assert.Equal(t, "4821", body["share_code"])
			respond(w, http.StatusCreated, map[string]interface{}{"data": map[string]interface{}{
				"document_id": "doc-1", "share_token": "tok-1", "share_type": body["share_type"], "share_code": body["share_code"],
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cb := &clipboardStub{}
	out, _, err := runCLI(t, srv, filepath.Join(t.TempDir(), "s.json"), "", &app{clipboard: cb},
		"share", "enable", "doc-1", "--code", "4821", "--copy")
	require.NoError(t, err)
	assert.Contains(t, out, "https://docs.example.com/shared/tok-1")
	assert.Contains(t, out, "Link copied")
	assert.Equal(t, "https://docs.example.com/shared/tok-1", cb.text)
}

func TestShareEnableRejectsShortCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		respond(w, http.StatusNotFound, map[string]interface{}{"detail": "not shared"})
	}))
	defer srv.Close()

	_, _, err := runCLI(t, srv, filepath.Join(t.TempDir(), "s.json"), "", nil, "share", "enable", "doc-1", "--code", "12")
	require.Error(t, err)
	assert.True(t, client.IsKind(err, client.KindValidation))
}

func TestOpenPromptsForCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents/shared/tok-1/check":
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"requires_password": true, "filename": "photo.png"}})
		case "/api/documents/shared/tok-1":
			if r.URL.Query().Get("share_code") != "4821" {
				respond(w, http.StatusForbidden, map[string]interface{}{"error": map[string]interface{}{"code": "INVALID_SHARE_CODE", "message": "invalid share code"}})
				return
			}
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"filename": "photo.png", "mime_type": "image/png", "file_size": 2048, "preview_url": "https://files.example.com/p",
			}})
		}
	}))
	defer srv.Close()

	out, errOut, err := runCLI(t, srv, filepath.Join(t.TempDir(), "s.json"), "0000\n4821\n", nil,
		"open", "https://docs.example.com/shared/tok-1")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Invalid share code")
	assert.Contains(t, out, "photo.png")
	assert.Contains(t, out, "image/png (image)")
	assert.Contains(t, out, "2.00 KB")
}

func TestOpenUnknownShare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, map[string]interface{}{"error": map[string]interface{}{"code": "NOT_FOUND", "message": "share not found or expired"}})
	}))
	defer srv.Close()

	_, _, err := runCLI(t, srv, filepath.Join(t.TempDir(), "s.json"), "", nil, "open", "gone")
	require.Error(t, err)
	assert.Equal(t, "share not found or expired", err.Error())
}

func TestOpenRetriesAfterRateLimit(t *testing.T) {
	resolves := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents/shared/tok-1/check":
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"requires_password": true, "filename": "notes.txt"}})
		case "/api/documents/shared/tok-1":
			resolves++
			if resolves == 1 {
				respond(w, http.StatusTooManyRequests, map[string]interface{}{"error": map[string]interface{}{"code": "TOO_MANY_REQUESTS", "message": "too many requests"}})
				return
			}
			respond(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"filename": "notes.txt", "mime_type": "text/plain", "file_size": 10, "preview_url": "https://files.example.com/n",
			}})
		}
	}))
	defer srv.Close()

	out, errOut, err := runCLI(t, srv, filepath.Join(t.TempDir(), "s.json"), "4821\n4821\n", nil, "open", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 2, resolves)
	assert.Contains(t, errOut, "try again")
	assert.Contains(t, out, "notes.txt")
}
