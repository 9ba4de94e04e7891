// internal/domain/progress/service.go
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/examprep-backend/internal/domain/exam"
	"gorm.io/gorm"
)

// Business errors surfaced to the API layer
var (
	ErrNotEntitled    = errors.New("exam has not been purchased or access expired")
	ErrExamNotFound   = errors.New("exam not found")
	ErrInvalidAttempt = errors.New("invalid attempt submission")
)

// EntitlementChecker reports whether a user currently has access to an exam
type EntitlementChecker interface {
	HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error)
}

// Catalog resolves exams, needed for the pass score threshold
type Catalog interface {
	GetByIDs(ids []uint) ([]exam.Exam, error)
}

// Service records and reports practice attempts. Every operation is gated on
// an active entitlement: purchased access that has expired blocks new
// attempts but history stays readable.
type Service struct {
	db           *gorm.DB
	entitlements EntitlementChecker
	catalog      Catalog
}

// NewService creates a new progress service
func NewService(db *gorm.DB, entitlements EntitlementChecker, catalog Catalog) *Service {
	return &Service{
		db:           db,
		entitlements: entitlements,
		catalog:      catalog,
	}
}

// RecordAttemptRequest is a completed practice run submission
type RecordAttemptRequest struct {
	QuestionsTotal   int `json:"questions_total" binding:"required,min=1"`
	QuestionsCorrect int `json:"questions_correct" binding:"min=0"`
	DurationSeconds  int `json:"duration_seconds" binding:"min=0"`
}

// RecordAttempt scores and stores a completed practice run
func (s *Service) RecordAttempt(ctx context.Context, userID, examID uint, req *RecordAttemptRequest) (*Attempt, error) {
	if req.QuestionsTotal <= 0 || req.QuestionsCorrect < 0 || req.QuestionsCorrect > req.QuestionsTotal {
		return nil, ErrInvalidAttempt
	}

	entitled, err := s.entitlements.HasActiveEntitlement(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to check entitlement: %w", err)
	}
	if !entitled {
		return nil, ErrNotEntitled
	}

	exams, err := s.catalog.GetByIDs([]uint{examID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve exam: %w", err)
	}
	if len(exams) == 0 {
		return nil, ErrExamNotFound
	}

	scorePercent := req.QuestionsCorrect * 100 / req.QuestionsTotal
	attempt := &Attempt{
		UserID:           userID,
		ExamID:           examID,
		QuestionsTotal:   req.QuestionsTotal,
		QuestionsCorrect: req.QuestionsCorrect,
		ScorePercent:     scorePercent,
		Passed:           scorePercent >= exams[0].PassScore,
		DurationSeconds:  req.DurationSeconds,
		CompletedAt:      time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns a user's attempts for one exam, newest first
func (s *Service) ListAttempts(ctx context.Context, userID, examID uint) ([]Attempt, error) {
	var attempts []Attempt
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		Order("completed_at DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// Summaries aggregates the user's history across all attempted exams
func (s *Service) Summaries(ctx context.Context, userID uint) ([]Summary, error) {
	var attempts []Attempt
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("exam_id ASC, completed_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	byExam := map[uint]*Summary{}
	order := []uint{}
	for _, a := range attempts {
		sum, ok := byExam[a.ExamID]
		if !ok {
			sum = &Summary{ExamID: a.ExamID}
			byExam[a.ExamID] = sum
			order = append(order, a.ExamID)
		}
		sum.AttemptCount++
		if a.ScorePercent > sum.BestScorePercent {
			sum.BestScorePercent = a.ScorePercent
		}
		if a.Passed {
			sum.Passed = true
		}
	}

	out := make([]Summary, 0, len(order))
	for _, examID := range order {
		out = append(out, *byExam[examID])
	}
	return out, nil
}
