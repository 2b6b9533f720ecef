package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// ollamaBase возвращает адрес Ollama, если LLM_URL указывает на неё
func ollamaBase(llmURL string) (string, bool) {
	u, err := url.Parse(llmURL)
	if err != nil || u.Port() != "11434" {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimRight(llmURL, "/"), "/v1"), true
}

// ensureOllamaModels проверяет, что Ollama запущена, и скачивает недостающие модели
func ensureOllamaModels(ctx context.Context, logger *log.Logger, baseURL string, models ...string) error {
	type ollamaPullRequest struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}

	baseURL = strings.TrimRight(baseURL, "/")
	available, err := listOllamaModels(ctx, baseURL)
	if err != nil {
		return fmt.Errorf("ollama is not running or not reachable at %s: %w", baseURL, err)
	}

	for _, model := range models {
		if hasModel(available, model) {
			logger.Printf("Model %s is available", model)
			continue
		}

		logger.Printf("Model %s not found, pulling...", model)
		b, _ := json.Marshal(ollamaPullRequest{Name: model, Stream: false})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to pull model %s: %w", model, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to pull model %s: status %d", model, resp.StatusCode)
		}
		logger.Printf("Model %s pulled successfully", model)
	}
	return nil
}

func listOllamaModels(ctx context.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// hasModel: "nomic-embed-text" совпадает с "nomic-embed-text:latest"
func hasModel(available []string, model string) bool {
	for _, name := range available {
		if name == model || strings.TrimSuffix(name, ":latest") == model {
			return true
		}
	}
	return false
}
