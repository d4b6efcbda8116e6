package model

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Provider using Google Gemini
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	httpClient *http.Client
}

// NewGemini creates a new Gemini provider
func NewGemini(apiKey string, settings Settings) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if settings.Model == "" {
		settings.Model = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(settings.Model)
	model.SetTemperature(settings.Temperature)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	return &Gemini{
		client:     client,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Invoke sends the prompt, with the referenced image inlined, to Gemini
func (g *Gemini) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	var parts []genai.Part
	if prompt.ImageURL != "" {
		// genai.ImageData expects just the format suffix (e.g. "jpeg")
		data, format, err := FetchImage(ctx, g.httpClient, prompt.ImageURL)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.ImageData(format, data))
	}
	parts = append(parts, genai.Text(prompt.Text))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
