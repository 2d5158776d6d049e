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

	"github.com/quokkaworks/mnemo/pkg/memory"
)

const defaultGenerationModel = "openai/gpt-5.2"

// Three independent prompt templates. Each operation fails on its own; a
// broken importance call says nothing about fact extraction.
const (
	importancePrompt = `Rate how important this message is to remember for future conversation turns.
Scale: 1 (small talk, filler) to 10 (critical identity, commitments, decisions).
Return strict JSON: {"importance": <integer 1-10>}

Message:
%s`

	factsPrompt = `Extract durable, atomic facts from this message.

Rules:
1. Only explicit facts, no speculation
2. Each fact must stand alone without the surrounding conversation
3. confidence must be in [0.0, 1.0]
4. Return an empty list when nothing is worth keeping

Return strict JSON: {"facts":[{"content":"...","confidence":0.9}]}

Message:
%s`

	summaryPrompt = `Condense this conversation transcript into a short summary that preserves
names, decisions, commitments, and unresolved questions. Reply with the
summary text only.

Transcript:
%s`
)

// GenerationClient wraps an OpenAI-compatible /chat/completions endpoint for
// importance scoring, fact extraction, and summarization.
type GenerationClient struct {
	apiKey     string
	apiBase    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewGenerationClient(apiKey, apiBase, model string, maxTokens int, timeout time.Duration) *GenerationClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGenerationModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &GenerationClient{
		apiKey:     strings.TrimSpace(apiKey),
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *GenerationClient) Available() bool {
	return c != nil && c.apiKey != "" && c.apiBase != ""
}

// RateImportance scores one message on the 1-10 scale.
func (c *GenerationClient) RateImportance(ctx context.Context, content string) (int, error) {
	raw, err := c.complete(ctx, fmt.Sprintf(importancePrompt, content), true)
	if err != nil {
		return 0, err
	}
	var decoded struct {
		Importance int `json:"importance"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return 0, fmt.Errorf("%w: importance: %v", ErrBadResponse, err)
	}
	if decoded.Importance < 1 || decoded.Importance > 10 {
		return 0, fmt.Errorf("%w: importance %d out of range", ErrBadResponse, decoded.Importance)
	}
	return decoded.Importance, nil
}

// ExtractFacts pulls atomic facts out of one message. An empty list is a
// valid answer.
func (c *GenerationClient) ExtractFacts(ctx context.Context, content string) ([]memory.ExtractedFact, error) {
	raw, err := c.complete(ctx, fmt.Sprintf(factsPrompt, content), true)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Facts []memory.ExtractedFact `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: facts: %v", ErrBadResponse, err)
	}
	return decoded.Facts, nil
}

// Summarize condenses a linearized transcript into free text.
func (c *GenerationClient) Summarize(ctx context.Context, transcript string) (string, error) {
	raw, err := c.complete(ctx, fmt.Sprintf(summaryPrompt, transcript), false)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrBadResponse)
	}
	return summary, nil
}

func (c *GenerationClient) complete(ctx context.Context, prompt string, jsonShape bool) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a precise conversation-memory assistant."},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.maxTokens,
		"temperature": 0.3,
	}
	if jsonShape {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send generation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty choices", ErrBadResponse)
	}
	return decoded.Choices[0].Message.Content, nil
}
