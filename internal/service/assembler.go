package service

import (
	"fmt"
	"strings"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// EstimateTokens approximates the token count of a text. One token per four
// characters tracks real tokenizers closely enough for budget enforcement.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// AssembleInput carries everything one prompt is built from.
type AssembleInput struct {
	SystemPrompt string
	Results      []domain.RetrievalResult // sorted by similarity descending
	History      []domain.Message
	Criteria     []domain.EvaluationCriterion
	UserMessage  string
	TokenBudget  int // <= 0 means unlimited
}

// Prompt is the assembled, provider-neutral payload. System carries the
// fixed preamble (instructions, criteria block, tagged context); Messages
// carries the surviving history followed by the user question.
type Prompt struct {
	System    string
	Messages  []domain.Message
	Citations []domain.Citation
	// ContextCount is how many retrieved chunks survived trimming.
	ContextCount int
	// HistoryTrimmed is how many of the oldest turns were dropped.
	HistoryTrimmed int
}

// Assemble builds the prompt in fixed order: system instructions, the
// evaluation criteria block, retrieved context tagged per source, prior
// turns, and the user question last. When the payload exceeds the budget,
// chunks are dropped from the lowest-similarity end first, then history from
// the oldest turn forward. The system prompt, criteria block, and user
// question are never dropped. Citations cover exactly the surviving chunks.
func Assemble(input AssembleInput) *Prompt {
	criteriaBlock := formatCriteria(input.Criteria)

	fixedCost := EstimateTokens(input.SystemPrompt) +
		EstimateTokens(criteriaBlock) +
		EstimateTokens(input.UserMessage)

	budget := input.TokenBudget
	unlimited := budget <= 0

	// chunks: keep the highest-similarity prefix that fits alongside the
	// fixed parts
	kept := input.Results
	if !unlimited {
		for len(kept) > 0 {
			if fixedCost+contextCost(kept)+historyCost(input.History) <= budget {
				break
			}
			kept = kept[:len(kept)-1]
		}
	}

	// history: trim oldest-first only if dropping every chunk was not enough
	history := input.History
	trimmed := 0
	if !unlimited {
		for len(history) > 0 && fixedCost+contextCost(kept)+historyCost(history) > budget {
			history = history[1:]
			trimmed++
		}
	}

	var system strings.Builder
	system.WriteString(input.SystemPrompt)
	if criteriaBlock != "" {
		system.WriteString("\n\n")
		system.WriteString(criteriaBlock)
	}
	if len(kept) > 0 {
		system.WriteString("\n\n")
		system.WriteString(formatContext(kept))
	}

	messages := make([]domain.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: input.UserMessage})

	citations := make([]domain.Citation, 0, len(kept))
	for _, r := range kept {
		citations = append(citations, domain.CitationFor(r))
	}

	return &Prompt{
		System:         system.String(),
		Messages:       messages,
		Citations:      citations,
		ContextCount:   len(kept),
		HistoryTrimmed: trimmed,
	}
}

func contextCost(results []domain.RetrievalResult) int {
	if len(results) == 0 {
		return 0
	}
	return EstimateTokens(formatContext(results))
}

func historyCost(history []domain.Message) int {
	total := 0
	for _, m := range history {
		total += EstimateTokens(m.Content)
	}
	return total
}

func formatContext(results []domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Ground your answer in the following context. Cite the source of every fact you use.\n")
	for _, r := range results {
		meta := r.Metadata
		fmt.Fprintf(&b, "\n[Source: %s (chunk %d of %d)]\n%s\n",
			meta.Filename, meta.ChunkIndex+1, meta.ChunkCount, r.Content)
	}
	return b.String()
}

func formatCriteria(criteria []domain.EvaluationCriterion) string {
	if len(criteria) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Score the response against these criteria. For each criterion give a score from 0 to the stated weight and a one-sentence rationale, then a weighted total.\n")
	for i, c := range criteria {
		fmt.Fprintf(&b, "%d. %s (weight %.1f): %s\n", i+1, c.Name, c.Weight, c.Description)
	}
	return b.String()
}
