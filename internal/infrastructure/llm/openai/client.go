package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// RequestsPerSecond throttles all calls through one limiter; the
	// provider's own rate limits are the real ceiling.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	api      *gopenai.Client
	cfg      Config
	limiter  *rate.Limiter
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	var api *gopenai.Client
	if cfg.APIKey != "" {
		clientCfg := gopenai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		api = gopenai.NewClientWithConfig(clientCfg)
	}

	return &Client{
		api:      api,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		executor: executor,
	}
}

func (c *Client) enabled() bool {
	return c.api != nil
}

// Classifier implements the model-backed classification stage.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Enabled() bool {
	return c.client.enabled() && c.client.cfg.ChatModel != ""
}

func (c *Classifier) Model() string {
	return c.client.cfg.ChatModel
}

func (c *Classifier) Classify(ctx context.Context, title, excerpt string) (domain.ModelLabel, error) {
	if err := c.client.limiter.Wait(ctx); err != nil {
		return domain.ModelLabel{}, err
	}

	request := gopenai.ChatCompletionRequest{
		Model:       c.client.cfg.ChatModel,
		Temperature: 0.1,
		MaxTokens:   500,
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleSystem, Content: classificationSystemPrompt()},
			{Role: gopenai.ChatMessageRoleUser, Content: classificationUserPrompt(title, excerpt)},
		},
	}

	var response gopenai.ChatCompletionResponse
	call := func(callCtx context.Context) error {
		var err error
		response, err = c.client.api.CreateChatCompletion(callCtx, request)
		return err
	}

	var err error
	if c.client.executor != nil {
		err = c.client.executor.Execute(ctx, "openai.chat", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.ModelLabel{}, wrapTemporaryIfNeeded("model classify", err)
	}

	if len(response.Choices) == 0 {
		return domain.ModelLabel{}, domain.WrapError(domain.ErrMalformedResponse, "model classify",
			fmt.Errorf("no choices in response"))
	}
	return parseLabel(response.Choices[0].Message.Content)
}

// parseLabel decodes the strict-JSON answer, tolerating fenced or
// prefixed output around the object.
func parseLabel(raw string) (domain.ModelLabel, error) {
	var payload struct {
		PrimaryCategory string  `json:"primary_category"`
		Confidence      float64 `json:"confidence"`
		Secondary       []struct {
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"secondary_categories"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return domain.ModelLabel{}, domain.WrapError(domain.ErrMalformedResponse, "parse model label", err)
	}
	if strings.TrimSpace(payload.PrimaryCategory) == "" {
		return domain.ModelLabel{}, domain.WrapError(domain.ErrMalformedResponse, "parse model label",
			fmt.Errorf("empty primary_category"))
	}

	label := domain.ModelLabel{
		Primary:   domain.NewScoredCategory(strings.TrimSpace(payload.PrimaryCategory), payload.Confidence),
		Reasoning: payload.Reasoning,
	}
	for _, tag := range payload.Secondary {
		label.Secondary = append(label.Secondary, domain.NewScoredCategory(strings.TrimSpace(tag.Category), tag.Confidence))
	}
	return label, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// Embedder builds dense vectors for chunks and queries.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Enabled() bool {
	return e.client.enabled() && e.client.cfg.EmbedModel != ""
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request := gopenai.EmbeddingRequest{
		Model: gopenai.EmbeddingModel(e.client.cfg.EmbedModel),
		Input: texts,
	}

	var response gopenai.EmbeddingResponse
	call := func(callCtx context.Context) error {
		var err error
		response, err = e.client.api.CreateEmbeddings(callCtx, request)
		return err
	}

	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "openai.embed", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed batch", err)
	}

	vectors := make([][]float32, len(response.Data))
	for i, item := range response.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
