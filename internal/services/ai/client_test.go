package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	return NewClient(&config.AIConfig{
		BaseURL:     url + "/",
		APIKey:      "sk-test",
		Model:       "deepseek-v3.1",
		Temperature: 0.7,
		MaxTokens:   500,
		Timeout:     timeout,
	}, nil, testLogger())
}

func TestCompleteSuccess(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hi there \n"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	history := []models.Message{
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "reply"},
	}

	reply, err := c.Complete(context.Background(), "be nice", history, "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "  hi there \n" {
		t.Fatalf("reply = %q, want verbatim content", reply)
	}

	want := []models.Message{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "reply"},
		{Role: models.RoleUser, Content: "hello"},
	}
	if !reflect.DeepEqual(got.Messages, want) {
		t.Fatalf("messages = %v, want %v", got.Messages, want)
	}
	if got.Model != "deepseek-v3.1" || got.Temperature != 0.7 || got.MaxTokens != 500 {
		t.Fatalf("request = %+v", got)
	}
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"server error", http.StatusBadGateway, `upstream down`, "status 502"},
		{"client error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "status 401"},
		{"malformed json", http.StatusOK, `{"choices":`, "failed to parse"},
		{"api error", http.StatusOK, `{"error":{"message":"quota exceeded"}}`, "quota exceeded"},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyReply.Error()},
		{"missing content", http.StatusOK, `{"choices":[{"message":{}}]}`, ErrEmptyReply.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, time.Second).Complete(context.Background(), "p", nil, "m")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Complete() error = %v, want containing %q", err, tt.want)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want exactly 1 (no retries)", calls)
			}
		})
	}
}

func TestCompleteEmptyReplySentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, time.Second).Complete(context.Background(), "p", nil, "m")
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("error = %v, want ErrEmptyReply", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(t, srv.URL, 50*time.Millisecond).Complete(context.Background(), "p", nil, "m")
	if err == nil {
		t.Fatalf("Complete() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
}

func TestInsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	strict := newTestClient(t, srv.URL, time.Second)
	if _, err := strict.Complete(context.Background(), "p", nil, "m"); err == nil {
		t.Fatalf("self-signed certificate accepted without opt-in")
	}

	lax := NewClient(&config.AIConfig{
		BaseURL:            srv.URL,
		APIKey:             "k",
		Model:              "m",
		Timeout:            time.Second,
		InsecureSkipVerify: true,
	}, nil, testLogger())
	reply, err := lax.Complete(context.Background(), "p", nil, "m")
	if err != nil || reply != "ok" {
		t.Fatalf("Complete() = %q, %v", reply, err)
	}
}
