// internal/domain/exam/entity.go
package exam

import (
	"time"

	"gorm.io/gorm"
)

// Exam represents a certification practice exam offered in the catalog
type Exam struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Slug            string         `gorm:"uniqueIndex;not null;size:100" json:"slug"`
	Title           string         `gorm:"not null;size:255" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Category        string         `gorm:"index;size:100" json:"category"` // cloud, security, networking, ...
	Vendor          string         `gorm:"size:100" json:"vendor"`
	PriceCents      int64          `gorm:"not null" json:"price_cents"`
	QuestionCount   int            `gorm:"default:0" json:"question_count"`
	DurationMinutes int            `gorm:"default:0" json:"duration_minutes"`
	PassScore       int            `gorm:"default:70" json:"pass_score"` // Percentage required to pass
	IsActive        bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Exam) TableName() string {
	return "exams"
}

// GetFormattedPrice returns the price as a float in major currency units
func (e *Exam) GetFormattedPrice() float64 {
	return float64(e.PriceCents) / 100
}
