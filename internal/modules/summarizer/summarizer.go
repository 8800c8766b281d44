// Package summarizer generates short Korean efficacy summaries through the
// OpenAI chat completions API.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pilling-app/pilling-core/internal/config"
)

// ErrSummarization wraps any upstream failure. Batch callers substitute
// PlaceholderSummary instead of propagating it.
var ErrSummarization = errors.New("summarization failed")

// PlaceholderSummary is stored when no efficacy text exists or the
// summarizer call fails during a batch or per-item path.
const PlaceholderSummary = "효능 정보 없음"

const (
	systemPrompt = "당신은 약의 효능정보를 요약해주는 사람입니다. 다음 약 효능 정보를 두세 단어로 요약한 뒤 반환해주세요"

	requestTimeout = 30 * time.Second
)

// Client calls the chat completions API with fixed low-variance sampling and
// a bounded output length.
type Client struct {
	api   openai.Client
	model openai.ChatModel
}

// New creates a summarizer client from config. An optional endpoint points at
// an OpenAI-compatible server.
func New(cfg config.OpenAIConfig) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if strings.TrimSpace(cfg.Endpoint) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.Endpoint, "/")))
	}
	return &Client{
		api:   openai.NewClient(opts...),
		model: openai.ChatModel(cfg.Model),
	}
}

// Summarize condenses efficacy text into two or three Korean words.
func (c *Client) Summarize(ctx context.Context, efficacyText string) (string, error) {
	return c.complete(ctx, efficacyText)
}

// SummarizeWithKeyword condenses efficacy text while forcing the given search
// keyword to appear in the output.
func (c *Client) SummarizeWithKeyword(ctx context.Context, efficacyText, keyword string) (string, error) {
	prompt := fmt.Sprintf("효능정보 %s를 키워드 %s를 반드시 넣어서 두세 단어로 요약한 뒤 반환해주세요", efficacyText, keyword)
	return c.complete(ctx, prompt)
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.5),
		MaxTokens:   openai.Int(100),
		N:           openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarization, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrSummarization)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrSummarization)
	}
	return summary, nil
}
