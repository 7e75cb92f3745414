package llm

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// GeminiConnector streams generations from the Gemini API.
type GeminiConnector struct {
	client *genai.Client
}

func NewGeminiConnector(ctx context.Context, apiKey string) (*GeminiConnector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "failed to build gemini client", err)
	}
	return &GeminiConnector{client: client}, nil
}

func (c *GeminiConnector) Provider() domain.Provider {
	return domain.ProviderGemini
}

func (c *GeminiConnector) Complete(ctx context.Context, req Request) (*Stream, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	out := NewStream()
	go func() {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				out.Close(classifyGeminiError(err))
				return
			}
			for _, candidate := range resp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if !out.Send(ctx, part.Text) {
						out.Close(classifyGeminiError(ctx.Err()))
						return
					}
				}
			}
		}
		out.Close(nil)
	}()
	return out, nil
}

func classifyGeminiError(err error) error {
	if ctxErr := classifyContext(err); ctxErr != nil {
		return ctxErr
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "gemini call failed", err)
}
