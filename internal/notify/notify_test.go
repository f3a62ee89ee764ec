package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/digest"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Send(context.Background(), Message{Subject: "s", Text: "Alpha increased by 5"}))
	assert.Contains(t, buf.String(), "Alpha increased by 5")
	assert.Contains(t, buf.String(), `"component":"log_notifier"`)
	assert.Equal(t, "log", n.Name())
}

func TestTelegram_Send(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []telegramRequest
		paths    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: "-100", BaseURL: srv.URL}, zerolog.Nop())
	err := tg.Send(context.Background(), Message{Text: "*Holdings*", Mode: digest.ModeMarkdown})
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", paths[0])
	assert.Equal(t, "-100", requests[0].ChatID)
	assert.Equal(t, "*Holdings*", requests[0].Text)
	assert.Equal(t, "Markdown", requests[0].ParseMode)
	assert.True(t, requests[0].DisableWebPagePreview)
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "t", ChatID: "c", BaseURL: srv.URL}, zerolog.Nop())
	err := tg.Send(context.Background(), Message{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot was blocked")
}

func TestTelegram_NotConfigured(t *testing.T) {
	tg := NewTelegram(TelegramConfig{}, zerolog.Nop())
	assert.Error(t, tg.Send(context.Background(), Message{Text: "x"}))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, "Markdown", parseMode(digest.ModeMarkdown))
	assert.Equal(t, "HTML", parseMode(digest.ModeHTML))
	assert.Equal(t, "", parseMode(digest.ModePlain))
}

func TestSplit(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, []string{"abc"}, Split("abc", 10))
	})

	t.Run("splits on lines", func(t *testing.T) {
		parts := Split("aaaa\nbbbb\ncccc", 10)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)
	})

	t.Run("hard split of long line keeps runes whole", func(t *testing.T) {
		line := strings.Repeat("é", 10) // 20 bytes
		parts := Split(line, 7)
		for _, p := range parts {
			assert.LessOrEqual(t, len(p), 7)
			assert.True(t, strings.HasPrefix(p, "é"))
		}
		assert.Equal(t, line, strings.Join(parts, ""))
	})
}

func TestMailgun_Send(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		// Mailgun posts multipart or urlencoded bodies depending on attachments
		_ = r.ParseMultipartForm(1 << 20)
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Queued. Thank you.","id":"<1@example.com>"}`))
	}))
	defer srv.Close()

	mg := NewMailgun(MailgunConfig{
		Domain:    "example.com",
		APIKey:    "key",
		Sender:    "Treasury <bot@example.com>",
		Recipient: "me@example.com",
		APIBase:   srv.URL + "/v3",
	}, zerolog.Nop())

	err := mg.Send(context.Background(), Message{Subject: "Changes", Text: "<b>Alpha</b> increased", Mode: digest.ModeHTML})
	require.NoError(t, err)

	assert.Equal(t, []string{"Changes"}, form["subject"])
	assert.Equal(t, []string{"Alpha increased"}, form["text"])
	assert.Equal(t, []string{"me@example.com"}, form["to"])
	assert.Contains(t, form["html"][0], "<b>Alpha</b>")
	assert.Equal(t, "mailgun", mg.Name())
}
