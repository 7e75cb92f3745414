package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// AnthropicConnector streams messages from the Anthropic API.
type AnthropicConnector struct {
	client anthropic.Client
}

func NewAnthropicConnector(apiKey string) *AnthropicConnector {
	return &AnthropicConnector{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (c *AnthropicConnector) Provider() domain.Provider {
	return domain.ProviderAnthropic
}

func (c *AnthropicConnector) Complete(ctx context.Context, req Request) (*Stream, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	providerStream := c.client.Messages.NewStreaming(ctx, params)
	out := NewStream()
	go func() {
		defer providerStream.Close()
		for providerStream.Next() {
			event := providerStream.Current()
			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
			if !ok || textDelta.Text == "" {
				continue
			}
			if !out.Send(ctx, textDelta.Text) {
				out.Close(classifyAnthropicError(ctx.Err()))
				return
			}
		}
		if err := providerStream.Err(); err != nil {
			out.Close(classifyAnthropicError(err))
			return
		}
		out.Close(nil)
	}()
	return out, nil
}

func classifyAnthropicError(err error) error {
	if ctxErr := classifyContext(err); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "anthropic call failed", err)
}
