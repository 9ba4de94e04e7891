// internal/domain/progress/entity.go
package progress

import (
	"time"
)

// Attempt is one completed practice run of an exam
type Attempt struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index:idx_attempt_user_exam" json:"user_id"`
	ExamID           uint      `gorm:"not null;index:idx_attempt_user_exam" json:"exam_id"`
	QuestionsTotal   int       `gorm:"not null" json:"questions_total"`
	QuestionsCorrect int       `gorm:"not null" json:"questions_correct"`
	ScorePercent     int       `gorm:"not null" json:"score_percent"`
	Passed           bool      `gorm:"not null" json:"passed"`
	DurationSeconds  int       `json:"duration_seconds"`
	CompletedAt      time.Time `gorm:"not null" json:"completed_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName overrides the table name
func (Attempt) TableName() string {
	return "exam_attempts"
}

// Summary aggregates a user's history for one exam
type Summary struct {
	ExamID           uint `json:"exam_id"`
	AttemptCount     int  `json:"attempt_count"`
	BestScorePercent int  `json:"best_score_percent"`
	Passed           bool `json:"passed"`
}
