package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/efebarandurmaz/callsight/internal/llm"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
)

// Client implements llm.Embedder for OpenAI-compatible APIs (OpenAI, Ollama, vLLM, etc.).
type Client struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates an OpenAI-compatible embedding client.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultEmbedModel
	}
	return &Client{
		name:    "openai",
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Register adds this client to f under every OpenAI-compatible preset.
func Register(f *llm.ProviderFactory) {
	for name, url := range llm.KnownProviders {
		f.Register(name, func(cfg llm.ProviderConfig) (llm.Embedder, error) {
			base := cfg.BaseURL
			if base == "" {
				base = url
			}
			c := New(cfg.APIKey, cfg.Model, base)
			c.name = name
			return c, nil
		})
	}
	f.Register("custom", func(cfg llm.ProviderConfig) (llm.Embedder, error) {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom embedding provider requires a base_url")
		}
		c := New(cfg.APIKey, cfg.Model, cfg.BaseURL)
		c.name = "custom"
		return c, nil
	})
}

func (c *Client) Name() string { return c.name }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model": c.model,
		"input": texts,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%s embed: decode response: %w", c.name, err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%s embed: got %d embeddings for %d texts", c.name, len(result.Data), len(texts))
	}

	sort.SliceStable(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}
