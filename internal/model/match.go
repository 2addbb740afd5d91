package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult is a persisted scored pairing between a lost and a found
// item. Rows are advisory: state transitions never depend on them.
type MatchResult struct {
	ID           uuid.UUID `json:"id"`
	LostItemID   uuid.UUID `json:"lost_item_id"`
	FoundItemID  uuid.UUID `json:"found_item_id"`
	Score        int       `json:"score"`
	Explanations []string  `json:"explanations"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Match is a scored counterpart served to a reader, joined with the
// counterpart item summary.
type Match struct {
	Score        int        `json:"score"`
	Explanations []string   `json:"explanations"`
	LostItem     *LostItem  `json:"lost_item,omitempty"`
	FoundItem    *FoundItem `json:"found_item,omitempty"`
}
