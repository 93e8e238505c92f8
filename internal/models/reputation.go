package models

import "time"

// ReputationRecord aggregates ratings and completions for one address.
// AverageRating is TotalScore*100/RatingCount with integer truncation, so 450
// reads as 4.50. Records are created lazily on first write and never deleted.
type ReputationRecord struct {
	Subject        Address   `json:"subject"`
	TotalScore     int64     `json:"total_score"`
	RatingCount    int64     `json:"rating_count"`
	AverageRating  int64     `json:"average_rating"`
	CompletedCount int64     `json:"completed_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Rating is one entry in a subject's append-only rating history.
type Rating struct {
	Subject   Address   `json:"subject"`
	Rater     Address   `json:"rater"`
	Score     int       `json:"score"` // 1..5 inclusive
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
