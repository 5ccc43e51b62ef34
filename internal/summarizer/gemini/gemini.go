// Package gemini implements summarizer.Summarizer with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/summarizer"
)

// Provider is the name reported in summarizer errors.
const Provider = "gemini"

const (
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 120 * time.Second
)

// Config selects the model and credentials.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// BaseURL overrides the API endpoint. Optional.
	BaseURL string
}

// Summarizer calls GenerateContent with a JSON response schema.
type Summarizer struct {
	client      *genai.Client
	model       string
	temperature float32
}

// New builds a Summarizer.
func New(ctx context.Context, cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Summarizer{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Summarize implements summarizer.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, text, instructions string) (changelog.Changelog, error) {
	temperature := s.temperature
	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		genai.Text(summarizer.UserMessage(text)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(summarizer.Instructions(instructions), genai.RoleUser),
			Temperature:       &temperature,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    responseSchema(),
			SafetySettings:    safetySettings(),
		},
	)
	if err != nil {
		return changelog.Changelog{}, &summarizer.Error{Provider: Provider, Err: fmt.Errorf("generate content: %w", err)}
	}
	return summarizer.Parse(Provider, resp.Text())
}

// responseSchema mirrors summarizer.Schema in Gemini's schema dialect.
func responseSchema() *genai.Schema {
	enum := make([]string, 0, len(changelog.Categories))
	for _, c := range changelog.Categories {
		enum = append(enum, string(c))
	}
	str := &genai.Schema{Type: genai.TypeString}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"changes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"date":       str,
						"content":    str,
						"keywords":   {Type: genai.TypeArray, Items: str},
						"categories": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString, Enum: enum}},
					},
					Required:         []string{"date", "content", "keywords", "categories"},
					PropertyOrdering: []string{"date", "content", "keywords", "categories"},
				},
			},
			"upcoming_changes": str,
		},
		Required:         []string{"changes", "upcoming_changes"},
		PropertyOrdering: []string{"upcoming_changes", "changes"},
	}
}

// Changelog pages routinely mention exploits and security fixes, which the
// default filters may block.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return out
}
