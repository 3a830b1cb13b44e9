package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

// chatClient adapts any OpenAI-compatible chat-completions backend
// (OpenAI itself, Mistral's API, local runtimes) via the official SDK.
type chatClient struct {
	name   string
	model  string
	client openai.Client
}

func newChatClient(name string, cfg Settings, defaultBaseURL string) (*chatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &chatClient{name: name, model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

func (c *chatClient) Name() string { return c.name }

func (c *chatClient) Generate(ctx context.Context, req dispatch.GenerationRequest) (*dispatch.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, dispatch.NewError(dispatch.KindServer, c.name, "empty choices in completion response")
	}

	res := &dispatch.GenerationResult{
		Text:  resp.Choices[0].Message.Content,
		Model: string(resp.Model),
		Usage: &dispatch.TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
		Metadata: map[string]string{"finish_reason": string(resp.Choices[0].FinishReason)},
	}
	if resp.ID != "" {
		res.Metadata["response_id"] = resp.ID
	}
	return res, nil
}

// classify maps SDK errors onto the dispatch taxonomy. The SDK surfaces API
// failures as *openai.Error with the HTTP status attached; anything else is
// left for the executor's transport-level classification.
func (c *chatClient) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return dispatch.FromStatus(c.name, apierr.StatusCode, apierr.Message)
	}
	return dispatch.Classify(c.name, err)
}
