package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docshare-api/pkg/client"
)

func TestPayloadsEqualIgnoresVolatileKeys(t *testing.T) {
	a := []byte(`{"filename":"a.pdf","file_size":10,"created_at":"2024-01-01T00:00:00Z"}`)
	b := []byte(`{"file_size":10.0,"filename":"a.pdf","created_at":"2025-06-01T00:00:00Z"}`)
	assert.True(t, payloadsEqual(a, b, []string{"created_at"}))
	assert.False(t, payloadsEqual(a, b, nil))
}

func TestCompareTargetUnwrapsEnvelopeAndNormalisesErrors(t *testing.T) {
	goSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/documents/shared/x/check" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"share not found or expired"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"requires_password":true,"filename":"a.pdf"}}`))
	}))
	defer goSrv.Close()
	legacySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/documents/shared/x/check" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Share not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"requires_password":true,"filename":"a.pdf"}`))
	}))
	defer legacySrv.Close()

	goSide := side{base: goSrv.URL + "/api"}
	legacySide := side{base: legacySrv.URL + "/api"}

	res := compareTarget(http.DefaultClient, goSide, legacySide, target{Method: "GET", Path: "/documents/shared/x/check"})
	require.NoError(t, res.Err)
	assert.True(t, res.StatusMatch)
	assert.True(t, res.BodyMatch)
	assert.Equal(t, client.KindNotFound, res.GoKind)
	assert.Equal(t, client.KindNotFound, res.LegacyKind)

	res = compareTarget(http.DefaultClient, goSide, legacySide, target{Method: "GET", Path: "/documents/shared/y/check"})
	require.NoError(t, res.Err)
	assert.False(t, res.diverged())

	var buf bytes.Buffer
	printReport(&buf, []comparison{res})
	assert.Contains(t, buf.String(), "[OK] GET /documents/shared/y/check")
}
