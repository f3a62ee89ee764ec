package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.md")
	require.NoError(t, os.WriteFile(path, []byte("# Page"), 0644))

	doc, err := File{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Page", doc)

	_, err = File{Path: filepath.Join(t.TempDir(), "missing.md")}.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFirecrawl_Fetch(t *testing.T) {
	var got scrapeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"## Public Companies that Own Bitcoin\n| A | 1 |"}}`))
	}))
	defer srv.Close()

	fc := NewFirecrawl(FirecrawlConfig{APIKey: "fc-key", Endpoint: srv.URL, URL: "https://example.com/t"}, zerolog.Nop())
	doc, err := fc.Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, doc, "Public Companies that Own Bitcoin")
	assert.Equal(t, "https://example.com/t", got.URL)
	assert.Equal(t, []string{"markdown"}, got.Formats)
	assert.Equal(t, "firecrawl:https://example.com/t", fc.Name())
}

func TestFirecrawl_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewFirecrawl(FirecrawlConfig{}, zerolog.Nop()).Fetch(context.Background())
		assert.Error(t, err)
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"success":false,"error":"Insufficient credits"}`))
		}))
		defer srv.Close()

		_, err := NewFirecrawl(FirecrawlConfig{APIKey: "k", Endpoint: srv.URL}, zerolog.Nop()).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "402")
	})

	t.Run("unsuccessful body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error":"blocked"}`))
		}))
		defer srv.Close()

		_, err := NewFirecrawl(FirecrawlConfig{APIKey: "k", Endpoint: srv.URL}, zerolog.Nop()).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blocked")
	})
}
