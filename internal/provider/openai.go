package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/model"
)

// OpenAI is a Provider backed by the OpenAI chat completions API.
type OpenAI struct {
	client      *openai.Client
	name        string
	model       string
	temperature float32
	logger      *slog.Logger
}

// Option configures an OpenAI provider.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewOpenAI creates an OpenAI provider from cfg.
func NewOpenAI(cfg config.ProviderConfig, opts ...Option) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	}

	name := cfg.Name
	if name == "" {
		name = config.DefaultProviderName
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = config.DefaultProviderModel
	}

	o.logger.Debug("initializing provider", "provider", name, "model", modelName, "base_url", clientCfg.BaseURL)
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        name,
		model:       modelName,
		temperature: cfg.Temperature,
		logger:      o.logger,
	}, nil
}

// Name implements Provider.
func (p *OpenAI) Name() string {
	return p.name
}

// Model implements Provider.
func (p *OpenAI) Model() string {
	return p.model
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
	}
	if prompt.MaxTokens > 0 {
		req.MaxCompletionTokens = prompt.MaxTokens
	}
	if prompt.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: %w", model.ErrMalformedOutput, ErrEmptyResponse)
	}
	p.logger.Debug("completion received",
		"model", p.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// classifyError maps a go-openai error onto the model error taxonomy.
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", model.ErrQuotaExceeded, err)
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return &model.TransientProviderError{Err: err}
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%w: %w", model.ErrProviderRejected, err)
	case status == 0:
		// No response: the request never reached the service or the
		// connection dropped while waiting.
		return &model.TransientProviderError{Transport: model.IsTransportFailure(err), Err: err}
	default:
		return err
	}
}
