package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Provider using a local Ollama server
type Ollama struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// NewOllama creates a new Ollama provider.
// Vision models that read receipts reasonably well include llava:1.6,
// qwen2-vl:7b and llava-phi3 (smaller, less accurate).
func NewOllama(baseURL string, settings Settings) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if settings.Model == "" {
		settings.Model = "llava"
	}

	return &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       settings.Model,
		temperature: settings.Temperature,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on local hardware
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Invoke sends the prompt, with the referenced image base64-encoded, to Ollama
func (o *Ollama) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	user := ollamaMessage{Role: "user", Content: prompt.Text}
	if prompt.ImageURL != "" {
		data, _, err := FetchImage(ctx, o.client, prompt.ImageURL)
		if err != nil {
			return "", err
		}
		user.Images = []string{base64.StdEncoding.EncodeToString(data)}
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			user,
		},
		Options: ollamaOptions{Temperature: o.temperature},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return chatResp.Message.Content, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
