package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/llm"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Model != "text-embedding-3-small" || len(body.Input) != 2 {
			t.Errorf("unexpected request %+v", body)
		}
		// Out of order on purpose; the client must sort by index.
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.5,0.5]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := New("key", "", srv.URL)
	got, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != 1 || got[1][0] != 0.5 {
		t.Errorf("embeddings = %v", got)
	}
}

func TestEmbed_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New("", "m", srv.URL).Embed(context.Background(), []string{"x"})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status error, got %v", err)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	if _, err := New("", "m", srv.URL).Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error when the server returns fewer embeddings")
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	got, err := New("", "", "http://127.0.0.1:0").Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("empty input should not call the API, got %v, %v", got, err)
	}
}

func TestRegister(t *testing.T) {
	f := llm.NewFactory()
	Register(f)

	e, err := f.Create(llm.ProviderConfig{Provider: "ollama"})
	if err != nil {
		t.Fatal(err)
	}
	c, ok := e.(*Client)
	if !ok {
		t.Fatalf("expected bare client, got %T", e)
	}
	if c.Name() != "ollama" || c.baseURL != llm.KnownProviders["ollama"] {
		t.Errorf("preset not applied: %s %s", c.Name(), c.baseURL)
	}

	if _, err := f.Create(llm.ProviderConfig{Provider: "custom"}); err == nil {
		t.Error("custom provider without base url should fail")
	}
}
