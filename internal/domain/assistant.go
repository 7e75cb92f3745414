package domain

import "time"

// Provider identifies an LLM provider family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// EvaluationCriterion is one row of an assistant's attached scoring rubric.
// Criteria are injected into the prompt as a deterministically formatted
// block with instructions on how to use them.
type EvaluationCriterion struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// Assistant is the configuration record the completion orchestrator resolves
// per request. It is read-only to this core: the surrounding application
// owns its lifecycle.
type Assistant struct {
	ID            string
	Name          string
	SystemPrompt  string
	Provider      Provider
	Model         string
	CollectionIDs []string
	TopK          int
	Threshold     float64
	TokenBudget   int
	Criteria      []EvaluationCriterion
	CreatedAt     time.Time
}

// HasCollections reports whether the assistant has any attached collection.
// An assistant without collections answers ungrounded; that is a normal
// path, not degraded behavior.
func (a *Assistant) HasCollections() bool {
	return len(a.CollectionIDs) > 0
}
