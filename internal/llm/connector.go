// Package llm normalizes heterogeneous LLM providers behind one connector
// interface: a uniform request shape in, a uniform token stream out, and a
// small fixed error taxonomy regardless of how each provider reports
// failure. Connectors are stateless and safe for concurrent reuse.
package llm

import (
	"context"
	"errors"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// Request is the provider-neutral completion request.
type Request struct {
	System      string
	Messages    []domain.Message
	Model       string
	MaxTokens   int
	Temperature float32
}

// Connector adapts one provider family. Complete returns immediately with a
// Stream; tokens arrive on it until end-of-stream or a classified error.
type Connector interface {
	Provider() domain.Provider
	Complete(ctx context.Context, req Request) (*Stream, error)
}

// Registry holds the configured connectors, keyed by provider. Like the
// plugin registry, it is built once at startup and passed explicitly.
type Registry struct {
	connectors map[domain.Provider]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[domain.Provider]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Provider()] = c
	}
	return r
}

// Get returns the connector for a provider, or ErrUnknownProvider before
// any network call is made.
func (r *Registry) Get(provider domain.Provider) (Connector, error) {
	c, ok := r.connectors[provider]
	if !ok {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnknownProvider,
			"no connector configured for provider "+string(provider), domain.ErrUnknownProvider)
	}
	return c, nil
}

// Providers lists the configured providers.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	return out
}

// classifyStatus maps an HTTP status from any provider into the taxonomy.
func classifyStatus(status int, err error) error {
	switch status {
	case 401, 403:
		return domain.NewDomainErrorWithCause(domain.ErrCodeProviderAuth, "provider rejected credentials", err)
	case 404:
		return domain.NewDomainErrorWithCause(domain.ErrCodeModelUnavailable, "requested model is unavailable", err)
	case 429:
		return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited, "provider rate limit exceeded", err)
	case 408, 504:
		return domain.NewDomainErrorWithCause(domain.ErrCodeTimeout, "provider call timed out", err)
	case 529:
		// anthropic's overloaded status behaves like a rate limit
		return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited, "provider overloaded", err)
	default:
		return domain.NewDomainErrorWithCause(domain.ErrCodeProviderError, "provider call failed", err)
	}
}

// classifyContext maps context termination into the taxonomy, or returns nil
// if err carries no context signal.
func classifyContext(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewDomainErrorWithCause(domain.ErrCodeCancelled, "completion cancelled by caller", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewDomainErrorWithCause(domain.ErrCodeTimeout, "provider call timed out", err)
	default:
		return nil
	}
}
