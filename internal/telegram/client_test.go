package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.Client(), "test-token", nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetBaseURL(srv.URL)
	return client
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotChat, gotText, gotMode string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		gotMode = r.PostForm.Get("parse_mode")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := client.SendMessage(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotChat != "42" || gotText != "<b>hi</b>" || gotMode != "HTML" {
		t.Fatalf("unexpected form: chat=%s text=%s mode=%s", gotChat, gotText, gotMode)
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	})

	err := client.SendMessage(context.Background(), 1, "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected description in error, got %v", err)
	}
}

func TestSetWebhook(t *testing.T) {
	var gotURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotURL = r.PostForm.Get("url")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := client.SetWebhook(context.Background(), "https://example.com/webhook/test-token"); err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if gotURL != "https://example.com/webhook/test-token" {
		t.Fatalf("unexpected webhook url %s", gotURL)
	}
}

func TestGetMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"username":"posterwatch_bot"}}`))
	})

	username, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("get me: %v", err)
	}
	if username != "posterwatch_bot" {
		t.Fatalf("unexpected username %s", username)
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(nil, "  ", nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}
