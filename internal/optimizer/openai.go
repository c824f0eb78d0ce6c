package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Completion is the text and token count of one LLM call.
type Completion struct {
	Text   string
	Tokens int64
}

// Completer runs a single-turn prompt against a language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAICompleter calls the OpenAI chat completions API.
type OpenAICompleter struct {
	completions chatCompletions
	model       string
	maxTokens   int64
}

const (
	defaultChatModel     = "gpt-4o-mini"
	defaultChatMaxTokens = 512
)

// OpenAIConfig configures an OpenAICompleter.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAICompleter builds a completer; an API key is required.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("openai: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return newOpenAICompleter(&client.Chat.Completions, cfg.Model, cfg.MaxTokens), nil
}

func newOpenAICompleter(c chatCompletions, model string, maxTokens int) *OpenAICompleter {
	if model == "" {
		model = defaultChatModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultChatMaxTokens
	}
	return &OpenAICompleter{completions: c, model: model, maxTokens: int64(maxTokens)}
}

func (o *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(o.model),
		MaxCompletionTokens: openai.Int(o.maxTokens),
		Messages:            msgs,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("openai chat: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{}, errors.New("openai chat: no choices returned")
	}
	return Completion{
		Text:   strings.TrimSpace(resp.Choices[0].Message.Content),
		Tokens: resp.Usage.TotalTokens,
	}, nil
}
