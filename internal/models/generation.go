package models

import "time"

// Generation represents a row in the 'generations' table: the provenance of one AI draft.
type Generation struct {
	ID                  string    `db:"id" json:"id"`
	ArticleID           string    `db:"article_id" json:"article_id"`
	IdeaID              string    `db:"idea_id" json:"idea_id"`
	Model               string    `db:"model" json:"model"`
	InputTokens         int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens        int       `db:"output_tokens" json:"output_tokens"`
	CostUSD             float64   `db:"cost_usd" json:"cost_usd"`
	DurationMs          int64     `db:"duration_ms" json:"duration_ms"`
	Attempts            int       `db:"attempts" json:"attempts"`
	Fallback            bool      `db:"fallback" json:"fallback"`
	SystemPromptPreview string    `db:"system_prompt_preview" json:"system_prompt_preview"`
	UserPromptPreview   string    `db:"user_prompt_preview" json:"user_prompt_preview"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}
