package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowweave/flowweave/config"
)

func testProvider(baseURL string) *OpenAIProvider {
	return NewOpenAIProvider(config.LLMProvider{
		Type:    "openai",
		APIKey:  "test-key",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Models: map[string]config.LLMModel{
			"planner": {Name: "gpt-4o", MaxTokens: 2000, CostPer1K: 0.005, CostPer1KOutput: 0.015},
		},
	})
}

func TestGenerateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"steps\":[]}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	out, in, comp, err := p.GenerateWithTokens(context.Background(), "plan this", "planner", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"steps":[]}` {
		t.Fatalf("content mismatch: %q", out)
	}
	if in != 10 || comp != 5 {
		t.Fatalf("token usage mismatch: %d/%d", in, comp)
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	_, err := p.Generate(context.Background(), "plan this", "planner", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("5xx must map to ErrUnreachable, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("connectivity failures must be retryable")
	}
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := testProvider(srv.URL)
	_, err := p.Generate(context.Background(), "plan this", "planner", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrUnreachable) || IsRetryable(err) {
		t.Fatalf("4xx must not be retried: %v", err)
	}
}

func TestConnectionRefusedIsRetryable(t *testing.T) {
	p := testProvider("http://127.0.0.1:1") // nothing listens here
	_, err := p.Generate(context.Background(), "plan this", "planner", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("network failure must map to ErrUnreachable, got %v", err)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("timeouts are connectivity failures")
	}
	if IsRetryable(fmt.Errorf("model produced garbage")) {
		t.Fatalf("arbitrary errors must not be retried")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestCalculateCost(t *testing.T) {
	p := testProvider("")
	got := p.CalculateCost(2000, 1000, "planner")
	want := 2.0*0.005 + 1.0*0.015
	if got != want {
		t.Fatalf("cost = %v, want %v", got, want)
	}
	if p.CalculateCost(1000, 1000, "unknown") != 0 {
		t.Fatalf("unknown model costs nothing")
	}
}
