package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// OpenAIConnector streams chat completions from the OpenAI API.
type OpenAIConnector struct {
	client *openai.Client
}

func NewOpenAIConnector(apiKey string) *OpenAIConnector {
	return &OpenAIConnector{client: openai.NewClient(apiKey)}
}

// NewOpenAIConnectorWithConfig builds a connector from an explicit client
// config, used to point the connector at a compatible endpoint.
func NewOpenAIConnectorWithConfig(cfg openai.ClientConfig) *OpenAIConnector {
	return &OpenAIConnector{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIConnector) Provider() domain.Provider {
	return domain.ProviderOpenAI
}

func (c *OpenAIConnector) Complete(ctx context.Context, req Request) (*Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	providerStream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := NewStream()
	go func() {
		defer providerStream.Close()
		for {
			resp, err := providerStream.Recv()
			if errors.Is(err, io.EOF) {
				out.Close(nil)
				return
			}
			if err != nil {
				out.Close(classifyOpenAIError(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			token := resp.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			if !out.Send(ctx, token) {
				out.Close(classifyOpenAIError(ctx.Err()))
				return
			}
		}
	}()
	return out, nil
}

func classifyOpenAIError(err error) error {
	if ctxErr := classifyContext(err); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "openai call failed", err)
}
