// Package answer получает ответ LLM по найденному контексту
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voice_rag/internal/domain"
)

var errNoChoices = errors.New("no response from LLM")

// Generator отвечает на вопрос по переданному контексту
type Generator interface {
	Generate(ctx context.Context, contextText, question string) (string, error)
}

type Config struct {
	URL         string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// Client - OpenAI-compatible /chat/completions (Ollama, LM Studio, OpenAI)
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// Generate формирует промпт и отправляет его в LLM
func (c *Client) Generate(ctx context.Context, contextText, question string) (string, error) {
	answer, err := c.complete(ctx, BuildPrompt(contextText, question))
	if err != nil {
		if ctxErr := domain.ContextError(ctx, "generation"); ctxErr != nil {
			var timeoutErr *domain.TimeoutError
			if errors.As(ctxErr, &timeoutErr) {
				return "", ctxErr
			}
		}
		return "", &domain.GenerationError{Err: err}
	}
	return answer, nil
}

// complete отправляет промпт в LLM и возвращает ответ
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.cfg.URL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errNoChoices
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
