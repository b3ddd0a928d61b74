package domain

import (
	"time"
)

// ScreeningRule is a CEL expression evaluated against every scored
// transaction. A rule that evaluates to true records its name as a flag on
// the resulting assessment. Flags are advisory watchlist markers; they do
// not participate in the weighted risk score.
type ScreeningRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over the transaction. Must return bool.
	Expression string `json:"expression"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
