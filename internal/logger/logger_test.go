package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}

func TestHTTPRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	t.Run("logs status", func(t *testing.T) {
		var buf bytes.Buffer
		hc := &http.Client{Transport: NewHTTPRequests(zerolog.New(&buf), nil)}

		resp, err := hc.Get(srv.URL + "/api/account/me/")
		require.NoError(t, err)
		resp.Body.Close()

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "GET", entry["method"])
		assert.Equal(t, "/api/account/me/", entry["path"])
		assert.EqualValues(t, http.StatusTeapot, entry["status"])
		assert.Equal(t, "http call", entry["message"])
	})

	t.Run("logs transport errors", func(t *testing.T) {
		var buf bytes.Buffer
		hc := &http.Client{Transport: NewHTTPRequests(zerolog.New(&buf), nil)}

		_, err := hc.Get("http://127.0.0.1:1/")
		require.Error(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Contains(t, entry, "error")
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		hc := &http.Client{Transport: NewHTTPRequests(zerolog.New(&buf).Level(zerolog.InfoLevel), nil)}

		resp, err := hc.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Zero(t, buf.Len())
	})
}
