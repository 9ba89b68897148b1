package models

import "time"

// UsageOpIterate is the operation label for content iteration requests.
const UsageOpIterate = "iterate"

// LLMUsage is one recorded LLM request, kept for cost monitoring. Failed
// requests are recorded too, with zero token counts and the error.
type LLMUsage struct {
	ID           string    `json:"id" db:"id"`
	ActorID      string    `json:"actor_id" db:"actor_id"`
	ProposalID   *string   `json:"proposal_id,omitempty" db:"proposal_id"`
	Provider     string    `json:"provider" db:"provider"`
	Model        string    `json:"model" db:"model"`
	InputTokens  int64     `json:"input_tokens" db:"input_tokens"`
	OutputTokens int64     `json:"output_tokens" db:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens" db:"total_tokens"`
	Operation    string    `json:"operation" db:"operation"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
