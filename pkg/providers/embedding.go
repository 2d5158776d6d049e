package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// EmbeddingClient wraps an OpenAI-compatible /embeddings endpoint. With no
// API key configured it reports unavailable and never attempts a request.
type EmbeddingClient struct {
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client
}

func NewEmbeddingClient(apiKey, apiBase, model string, timeout time.Duration) *EmbeddingClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if strings.TrimSpace(model) == "" {
		model = defaultEmbeddingModel
	}
	return &EmbeddingClient{
		apiKey:     strings.TrimSpace(apiKey),
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *EmbeddingClient) Available() bool {
	return c != nil && c.apiKey != "" && c.apiBase != ""
}

// Embed returns a fixed-length vector for text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embed: empty text")
	}

	payload, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding data", ErrBadResponse)
	}
	return decoded.Data[0].Embedding, nil
}
