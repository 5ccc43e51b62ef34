// Package openai implements summarizer.Summarizer with OpenAI or Azure OpenAI
// chat completions and a strict JSON schema response format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/summarizer"
)

// Provider is the name reported in summarizer errors.
const Provider = "openai"

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Config selects the endpoint and model.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint. With AzureAPIKey it is the Azure resource endpoint.
	BaseURL     string
	AzureAPIKey string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Summarizer calls the chat completions API.
type Summarizer struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

// New builds a Summarizer. Azure is used when AzureAPIKey is set.
func New(cfg Config) (*Summarizer, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var clientCfg goopenai.ClientConfig
	switch {
	case cfg.AzureAPIKey != "":
		if cfg.BaseURL == "" {
			return nil, errors.New("azure openai requires base_url")
		}
		clientCfg = goopenai.DefaultAzureConfig(cfg.AzureAPIKey, cfg.BaseURL)
	case cfg.APIKey != "":
		clientCfg = goopenai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	default:
		return nil, errors.New("openai api key is required")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Summarizer{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Summarize implements summarizer.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, text, instructions string) (changelog.Changelog, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: wireTemperature(s.temperature),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: summarizer.Instructions(instructions)},
			{Role: goopenai.ChatMessageRoleUser, Content: summarizer.UserMessage(text)},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   summarizer.SchemaName,
				Schema: summarizer.Schema,
				Strict: true,
			},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return changelog.Changelog{}, &summarizer.Error{Provider: Provider, Err: fmt.Errorf("create chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return changelog.Changelog{}, &summarizer.Error{Provider: Provider, Err: errors.New("no completion choices returned")}
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return changelog.Changelog{}, &summarizer.Error{Provider: Provider, Err: fmt.Errorf("model refused: %s", msg.Refusal)}
	}
	return summarizer.Parse(Provider, msg.Content)
}

// wireTemperature keeps an explicit zero from being dropped by omitempty.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
