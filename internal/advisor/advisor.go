package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pulse-sentinel/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("advisor call budget exhausted")

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// AdvisorService turns a finished assessment into a short plain-language
// narrative. It never changes the tier or the rule-based remedies.
type AdvisorService struct {
	tracer trace.Tracer
	llm    LLMClient
	model  string
	budget *rate.Limiter
	now    func() time.Time
}

func NewAdvisorService(tracer trace.Tracer, llm LLMClient, model string) *AdvisorService {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &AdvisorService{tracer: tracer, llm: llm, model: model, now: time.Now}
}

// WithRateLimit caps LLM calls at maxCalls per window, refilled evenly across
// the window. Calls over budget fail fast with ErrRateLimited.
func (s *AdvisorService) WithRateLimit(maxCalls int, window time.Duration) *AdvisorService {
	if maxCalls > 0 && window > 0 {
		s.budget = rate.NewLimiter(rate.Every(window/time.Duration(maxCalls)), maxCalls)
	}
	return s
}

func (s *AdvisorService) allowCall() bool {
	return s.budget == nil || s.budget.AllowN(s.now(), 1)
}

func (s *AdvisorService) Narrate(ctx context.Context, a domain.Assessment) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.narrate")
	defer span.End()
	span.SetAttributes(attribute.String("assessment.tier", string(a.Tier)))

	if !s.allowCall() {
		span.SetAttributes(attribute.Bool("advisor.rate_limited", true))
		return "", ErrRateLimited
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(BuildSystemPrompt()),
		openai.UserMessage(FormatAssessmentContext(a)),
	}

	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
