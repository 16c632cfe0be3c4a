package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type navRecorder struct {
	routes []string
}

func (n *navRecorder) Navigate(route string) { n.routes = append(n.routes, route) }

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, location string) (*Client, *MemoryStore, *navRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := NewMemoryStore()
	nav := &navRecorder{}
	c := New(Config{
		BaseURL:   srv.URL + "/api",
		Origin:    "https://docs.example.com",
		Session:   store,
		Navigator: nav,
		Location:  func() string { return location },
	})
	return c, store, nav
}

func TestLoginStoresSessionAndAttachesBearer(t *testing.T) {
	c, store, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "owner@example.com", r.PostForm.Get("username"))
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"access_token": "jwt-1", "token_type": "bearer", "expires_in": 1800,
				"user": map[string]interface{}{"id": "u1", "email": "owner@example.com"},
			}})
		case "/api/users/me":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"id": "u1", "email": "owner@example.com"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, "/documents")

	session, err := c.Login(context.Background(), "owner@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", session.AccessToken)
	assert.False(t, session.ExpiresAt.IsZero())

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", me.ID)
}

func TestUnauthorizedOnProtectedRouteClearsSessionAndRedirects(t *testing.T) {
	c, store, nav := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": map[string]interface{}{"code": "UNAUTHORIZED", "message": "invalid token"}})
	}, "/documents")
	require.NoError(t, store.Save(&Session{AccessToken: "expired"}))

	_, _, err := c.ListDocuments(context.Background(), "", 0, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnauthorized))

	stored, _ := store.Load()
	assert.Nil(t, stored)
	assert.Equal(t, []string{LandingRoute}, nav.routes)
}

func TestUnauthorizedOnLoginKeepsSession(t *testing.T) {
	c, store, nav := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": map[string]interface{}{"code": "INVALID_CREDENTIALS", "message": "invalid email or password"}})
	}, "/login")
	require.NoError(t, store.Save(&Session{AccessToken: "previous"}))

	_, err := c.Login(context.Background(), "owner@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", err.(*APIError).Message)

	stored, _ := store.Load()
	require.NotNil(t, stored)
	assert.Equal(t, "previous", stored.AccessToken)
	assert.Empty(t, nav.routes)
}

func TestUnauthorizedWhileOnSharedPageIsInline(t *testing.T) {
	c, store, nav := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"detail": "Not authenticated"})
	}, "/shared/tok-1")
	require.NoError(t, store.Save(&Session{AccessToken: "jwt"}))

	_, err := c.CheckShare(context.Background(), "tok-1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnauthorized))

	stored, _ := store.Load()
	assert.NotNil(t, stored)
	assert.Empty(t, nav.routes)
}

func TestResolveShareSendsCodeAndMapsErrors(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		switch r.URL.Query().Get("share_code") {
		case "4821":
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"filename": "plan.pdf", "mime_type": "application/pdf", "preview_url": "https://files/x"}})
		case "":
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": map[string]interface{}{"code": "NOT_FOUND", "message": "share not found or expired"}})
		default:
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": map[string]interface{}{"code": "INVALID_SHARE_CODE", "message": "invalid share code"}})
		}
	}, "/shared/tok-1")

	doc, err := c.ResolveShare(context.Background(), "tok-1", "4821")
	require.NoError(t, err)
	assert.Equal(t, "plan.pdf", doc.Filename)

	_, err = c.ResolveShare(context.Background(), "tok-1", "0000")
	assert.True(t, IsKind(err, KindInvalidCode))

	_, err = c.ResolveShare(context.Background(), "tok-1", "")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestDecodesLegacyBarePayload(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"requires_password": true, "filename": "a.txt"})
	}, "/shared/x")

	check, err := c.CheckShare(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, check.RequiresPassword)
	assert.Equal(t, "a.txt", check.Filename)
}

func TestNetworkErrorKind(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api"})
	_, err := c.CheckShare(context.Background(), "x")
	assert.True(t, IsKind(err, KindNetwork))
}

func TestUploadStreamsMultipart(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]interface{}{
			"id": "doc-1", "filename": header.Filename, "file_size": len(content),
		}})
	}, "/documents")

	doc, err := c.Upload(context.Background(), "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.EqualValues(t, 5, doc.FileSize)
}

func TestDownloadCopiesBody(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/download/doc-1", r.URL.Path)
		_, _ = w.Write([]byte("payload"))
	}, "/documents")

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "doc-1", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, "payload", buf.String())
}

func TestPayloadUnwrapsEnvelope(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(Payload([]byte(`{"data":{"a":1},"pagination":{"page":1}}`))))
	assert.JSONEq(t, `{"a":1}`, string(Payload([]byte(`{"a":1}`))))
	assert.JSONEq(t, `[1,2]`, string(Payload([]byte(`{"data":[1,2]}`))))
}
