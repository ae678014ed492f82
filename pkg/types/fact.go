package types

import "time"

// StrengthBoost is the multiplicative boost applied to a fact's strength
// every time the same entity is mentioned again. Strength is capped at 1.0
// and is never decayed by this core.
const StrengthBoost = 1.1

// Fact is a persisted, frequency/strength-weighted record of an entity
// associated with a user. Identity is (user, normalized name, kind):
// repeat writes to the same identity increment frequency and boost strength
// instead of creating a new row.
type Fact struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Name          string                 `json:"name"`
	Kind          EntityKind             `json:"kind"`
	Aliases       []string               `json:"aliases,omitempty"`
	Contexts      []string               `json:"contexts,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Frequency     int                    `json:"frequency"`
	Strength      float64                `json:"strength"`
	LastMentioned time.Time              `json:"last_mentioned"`
	CreatedAt     time.Time              `json:"created_at"`
}
