package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	app "github.com/posterwatch/posterwatch/internal/app"
	"github.com/posterwatch/posterwatch/internal/config"
)

const timelinePage = `
<div class="timeline-item"><a class="username"><bdi>@alice</bdi></a></div>
<div class="timeline-item"><a class="username"><bdi>@bob</bdi></a></div>`

func newTestServer(t *testing.T, botToken string) (*httptest.Server, *app.Application) {
	t.Helper()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(timelinePage))
	}))
	t.Cleanup(mirror.Close)

	cfg := &config.Config{
		Telegram: config.TelegramConfig{BotToken: botToken},
		Watcher: config.WatcherConfig{
			Schedule:        "@every 1h",
			PostsToCheck:    20,
			Mirrors:         []string{mirror.URL},
			FetchTimeoutSec: 5,
		},
	}

	application, err := app.New(cfg, app.Stores{}, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	if err := application.Hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(func() { _ = application.Hub.Stop(context.Background()) })

	srv := httptest.NewServer(NewHandler(application, botToken, nil))
	t.Cleanup(srv.Close)
	return srv, application
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWatchLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/watches", `{"handle":"@ExampleUser"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		Handle   string
		PageType string
		Active   bool
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Handle != "exampleuser" || !created.Active {
		t.Fatalf("unexpected watch %+v", created)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/watches", `{"handle":"exampleuser"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/watches/ExampleUser", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/watches/exampleuser", `{"active":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/watches/exampleuser/sightings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sightings: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/watches/exampleuser", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/watches/exampleuser", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateWatchRejectsInvalidHandle(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/watches", `{"handle":"not a handle!"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/watches", `{"handle":"x","unknown":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", resp.StatusCode)
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/subscribers", `{"chat_id":42}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/subscribers/42", `{"muted":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/subscribers", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/subscribers/42", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/subscribers/notanumber", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad chat id: expected 400, got %d", resp.StatusCode)
	}
}

func TestStatusAndSystem(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodGet, srv.URL+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", resp.StatusCode)
	}
	var status struct {
		Watches     int
		Subscribers int
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/system", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("system: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhookAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret-token")

	update := `{"update_id":1,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"hello"}}`

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhook/wrong-token", update)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong token: expected 403, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook/secret-token", strings.NewReader(update))
	req.Header.Set("Content-Type", "text/plain")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong content type: expected 403, got %d", resp2.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/webhook/secret-token", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid update: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/webhook/secret-token", "not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookDisabledWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/webhook/anything", `{"update_id":1}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
