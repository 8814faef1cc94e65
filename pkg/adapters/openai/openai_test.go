package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"message": "denied", "type": "invalid_request_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decision() *governance.DecisionContext {
	return &governance.DecisionContext{
		AgentID:   "h1",
		AgentType: "household_owner",
		Step:      2,
		Options:   []string{"do_nothing", "buy_insurance"},
		Payload:   "The river flooded twice in the last five years.",
	}
}

func TestAdapter_Propose(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "```json\n{\"decision\": 2, \"threat\": \"H\", \"coping\": \"M\"}\n```")

	a, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := a.Propose(context.Background(), decision(), nil)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if got.SkillID != "buy_insurance" {
		t.Errorf("SkillID = %q, want buy_insurance", got.SkillID)
	}
	if got.Reasoning["threat"] != "H" {
		t.Errorf("Reasoning = %v", got.Reasoning)
	}
}

func TestAdapter_Unauthorized(t *testing.T) {
	srv := completionServer(t, http.StatusUnauthorized, "")

	a, err := New(Config{APIKey: "bad", BaseURL: srv.URL + "/v1"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Propose(context.Background(), decision(), nil)
	if !errors.Is(err, governance.ErrAdapterUnavailable) {
		t.Errorf("Propose() error = %v, want ErrAdapterUnavailable", err)
	}
}

func TestAdapter_ServerErrorIsNotUnavailable(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, "")

	a, _ := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)

	_, err := a.Propose(context.Background(), decision(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, governance.ErrAdapterUnavailable) {
		t.Error("a 500 should be retryable, not unavailable")
	}
}

func TestNew_NoCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(Config{}, nil); !errors.Is(err, governance.ErrAdapterUnavailable) {
		t.Errorf("New() error = %v, want ErrAdapterUnavailable", err)
	}
}

func TestRenderPrompt(t *testing.T) {
	fb := &governance.Feedback{Attempt: 0, RuleID: "elevation_threat", Text: "elevate_house requires threat >= M"}
	got := RenderPrompt(decision(), fb)

	for _, want := range []string{
		"The river flooded",
		"agent h1 (household_owner) at step 2",
		"1. do_nothing",
		"2. buy_insurance",
		"requires threat >= M",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestAdapter_SendsSeedAndLimits(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"skill": "do_nothing", "threat": "L", "coping": "H"}`},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	a, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "local", MaxTokens: 128, Seed: 7}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Propose(context.Background(), decision(), nil); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if got["model"] != "local" || got["seed"] != float64(7) || got["max_completion_tokens"] != float64(128) {
		t.Errorf("request = %v", got)
	}
}
