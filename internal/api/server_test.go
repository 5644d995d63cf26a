package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/voicetally/internal/command"
	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/presence"
	"github.com/goodtune/voicetally/internal/storage"
	redisstore "github.com/goodtune/voicetally/internal/storage/redis"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/rs/zerolog"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (d *recordingDispatcher) Notify(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.texts = append(d.texts, text)
	return nil
}

// recordingSender collects relayed chat messages.
type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) Send(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type testEnv struct {
	server     *httptest.Server
	store      *redisstore.Store
	mr         *miniredis.Miniredis
	dispatcher *recordingDispatcher
	github     *recordingSender
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redisstore.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     4,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.Nop()
	clock := &usage.TestClock{CurrentTime: time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)}
	tracker := usage.NewTracker(store.Usage(), time.UTC, logger)
	query := usage.NewQuery(store.Usage())
	generator := usage.NewGenerator(store.Usage(), logger)
	dispatcher := &recordingDispatcher{}
	github := &recordingSender{}
	scheduler := usage.NewReportScheduler(generator, store.Reports(), dispatcher, usage.SchedulerConfig{
		Location: time.UTC,
		Clock:    clock,
	}, logger)

	deps := Deps{
		Presence:  presence.NewHandler(tracker, nil, clock, presence.Config{ChannelID: "vc-1", ChannelName: "lounge"}, logger),
		Commands:  command.NewHandler(query, generator, clock, time.UTC, logger),
		Query:     query,
		Generator: generator,
		Reports:   scheduler,
		Health:    store.Ping,
		GitHub:    github,
	}

	srv := httptest.NewServer(NewServer(":0", deps, logger).Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: store, mr: mr, dispatcher: dispatcher, github: github}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp, decoded
}

func TestVoiceEventsAccumulateUsage(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.do(t, http.MethodPost, "/v1/events/voice",
		`{"user_id":"u1","display_name":"Alice","previous_channel":"","new_channel":"vc-1","timestamp":"2025-05-10T10:00:00Z"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["outcome"] != "opened" || body["handled"] != true {
		t.Errorf("Unexpected join response: %v", body)
	}

	resp, body = env.do(t, http.MethodPost, "/v1/events/voice",
		`{"user_id":"u1","display_name":"Alice","previous_channel":"vc-1","new_channel":"","timestamp":"2025-05-10T11:30:00Z"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["outcome"] != "closed" || body["seconds"] != float64(5400) || body["month"] != "2025-05" {
		t.Errorf("Unexpected leave response: %v", body)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/users/u1/usage/202505", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["seconds"] != float64(5400) || body["formatted"] != "1h 30m 0s" {
		t.Errorf("Unexpected month response: %v", body)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/users/u1/usage", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	totals, ok := body["monthly_totals"].(map[string]any)
	if !ok || totals["2025-05"] != float64(5400) {
		t.Errorf("Unexpected totals response: %v", body)
	}
}

func TestVoiceEventOutsideTrackedChannel(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.do(t, http.MethodPost, "/v1/events/voice", `{"user_id":"u1","previous_channel":"vc-2","new_channel":"vc-3"}`)
	if resp.StatusCode != http.StatusOK || body["handled"] != false {
		t.Errorf("Expected unhandled 200, got %d: %v", resp.StatusCode, body)
	}
}

func TestBadRequests(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode string
	}{
		{"malformed json", http.MethodPost, "/v1/events/voice", `{"user_id":`, "bad_request"},
		{"unknown field", http.MethodPost, "/v1/commands", `{"text":"!report","extra":1}`, "bad_request"},
		{"missing user", http.MethodPost, "/v1/events/voice", `{"new_channel":"vc-1"}`, "invalid_transition"},
		{"invalid month", http.MethodGet, "/v1/users/u1/usage/May", "", "invalid_month"},
		{"invalid report month", http.MethodGet, "/v1/reports/2025-13", "", "invalid_month"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("Expected code %s, got %v", tt.wantCode, body["code"])
			}
		})
	}
}

func TestCommandsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	record := storage.NewUserRecord("u1")
	record.DisplayName = "Alice"
	record.MonthlyTotals["2025-05"] = 3600
	if err := env.store.Usage().Upsert(context.Background(), record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/v1/commands", `{"user_id":"u1","text":"!report 2025-05"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["handled"] != true || !strings.Contains(body["reply"].(string), "| 2025-05 | 1.00 |") {
		t.Errorf("Unexpected command response: %v", body)
	}

	_, body = env.do(t, http.MethodPost, "/v1/commands", `{"user_id":"u1","text":"good morning"}`)
	if body["handled"] != false {
		t.Errorf("Expected plain text to be unhandled, got %v", body)
	}
}

func TestReportEndpoints(t *testing.T) {
	env := setupTestServer(t)

	for _, seed := range []struct {
		id      string
		name    string
		seconds int64
	}{{"u1", "Alice", 7200}, {"u2", "Bob", 3600}, {"u3", "Carol", 0}} {
		record := storage.NewUserRecord(seed.id)
		record.DisplayName = seed.name
		record.MonthlyTotals["2025-05"] = seed.seconds
		if err := env.store.Usage().Upsert(context.Background(), record); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/v1/reports/2025-05", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["total_seconds"] != float64(10800) {
		t.Errorf("Expected total 10800, got %v", body["total_seconds"])
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %v", body["entries"])
	}
	if first, _ := entries[0].(map[string]any); first["user_id"] != "u1" {
		t.Errorf("Expected u1 first, got %v", entries[0])
	}

	resp, body = env.do(t, http.MethodPost, "/v1/reports/dispatch", "")
	if resp.StatusCode != http.StatusOK || body["dispatched"] != true {
		t.Fatalf("Expected dispatch, got %d: %v", resp.StatusCode, body)
	}
	_, body = env.do(t, http.MethodPost, "/v1/reports/dispatch", "")
	if body["dispatched"] != false {
		t.Errorf("Expected second dispatch on the same day to be skipped, got %v", body)
	}
	if len(env.dispatcher.texts) != 1 {
		t.Errorf("Expected 1 dispatched report, got %d", len(env.dispatcher.texts))
	}
}

func TestDispatchFailureIsInternalError(t *testing.T) {
	env := setupTestServer(t)
	env.dispatcher.err = errors.New("push rejected")

	resp, body := env.do(t, http.MethodPost, "/v1/reports/dispatch", "")
	if resp.StatusCode != http.StatusInternalServerError || body["code"] != "internal_error" {
		t.Errorf("Expected 500 internal_error, got %d: %v", resp.StatusCode, body)
	}
}

func TestStorageUnavailable(t *testing.T) {
	env := setupTestServer(t)
	env.mr.Close()

	resp, body := env.do(t, http.MethodGet, "/v1/users/u1/usage", "")
	if resp.StatusCode != http.StatusServiceUnavailable || body["code"] != "storage_unavailable" {
		t.Errorf("Expected 503 storage_unavailable, got %d: %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "unavailable" {
		t.Errorf("Expected unhealthy, got %d: %v", resp.StatusCode, body)
	}
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("Expected healthy, got %d: %v", resp.StatusCode, body)
	}
}

func postGitHub(t *testing.T, url, event, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url+"/v1/github", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/github: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode github response: %v", err)
	}
	return resp, decoded
}

func TestGitHubIssueCommentRelay(t *testing.T) {
	env := setupTestServer(t)

	const delivery = `{
		"action": "%s",
		"issue": {"number": 7, "title": "Crash on leave", "html_url": "https://github.com/example/repo/issues/7"},
		"comment": {"id": 1, "body": "Reproduced.", "user": {"login": "octocat", "id": 1}},
		"repository": {"full_name": "example/repo"}
	}`

	tests := []struct {
		name        string
		event       string
		action      string
		wantRelayed bool
	}{
		{name: "new comment", event: "issue_comment", action: "created", wantRelayed: true},
		{name: "edited comment", event: "issue_comment", action: "edited", wantRelayed: false},
		{name: "issue opened", event: "issues", action: "created", wantRelayed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postGitHub(t, env.server.URL, tt.event, fmt.Sprintf(delivery, tt.action))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
			}
			if body["relayed"] != tt.wantRelayed {
				t.Errorf("Expected relayed=%v, got %v", tt.wantRelayed, body["relayed"])
			}
		})
	}

	sent := env.github.sent()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly one relayed message, got %v", sent)
	}
	want := "💬 **octocat** commented on [Crash on leave](https://github.com/example/repo/issues/7):\n> Reproduced."
	if sent[0] != want {
		t.Errorf("Relayed message mismatch\n got: %q\nwant: %q", sent[0], want)
	}
}

func TestGitHubRelayBadBody(t *testing.T) {
	env := setupTestServer(t)

	resp, body := postGitHub(t, env.server.URL, "issue_comment", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "bad_request" {
		t.Errorf("Expected code bad_request, got %v", body["code"])
	}
	if len(env.github.sent()) != 0 {
		t.Errorf("Expected nothing relayed, got %v", env.github.sent())
	}
}

func TestGitHubRelayDisabled(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", Deps{}, zerolog.Nop()).Router())
	defer srv.Close()

	resp, body := postGitHub(t, srv.URL, "issue_comment", `{"action":"created"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	if body["code"] != "not_found" {
		t.Errorf("Expected code not_found, got %v", body["code"])
	}
}
