// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/coupon"
	"github.com/your-org/examprep-backend/internal/domain/exam"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"github.com/your-org/examprep-backend/internal/domain/progress"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
	"github.com/your-org/examprep-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		&user.User{},
		&exam.Exam{},
		&coupon.Coupon{},
		&coupon.UsageRecord{},
		&checkout.Session{},
		&checkout.LineItem{},
		&payment.Record{},
		&purchase.Entitlement{},
		&progress.Attempt{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_exams_category_active ON exams(category, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_exams_vendor ON exams(vendor)",

		"CREATE INDEX IF NOT EXISTS idx_coupons_active_window ON coupons(is_active, valid_from, valid_until)",

		"CREATE INDEX IF NOT EXISTS idx_checkout_sessions_user_status ON checkout_sessions(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_checkout_sessions_created_at ON checkout_sessions(created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_entitlements_user_expires ON entitlements(user_id, expires_at)",

		"CREATE INDEX IF NOT EXISTS idx_exam_attempts_completed_at ON exam_attempts(completed_at DESC)",
	}

	for _, index := range indexes {
		if err := m.db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Println("✅ Database indexes created successfully")
	return nil
}

// SeedInitialData seeds development data. Production deployments manage the
// catalog through the admin API instead.
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedExams(); err != nil {
		return fmt.Errorf("failed to seed exams: %w", err)
	}
	if err := m.seedCoupons(); err != nil {
		return fmt.Errorf("failed to seed coupons: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error == nil {
		log.Println("⏭️ Admin user already exists")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), 10)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := user.User{
		Email:        "admin@example.com",
		PasswordHash: string(hashedPassword),
		FirstName:    "Admin",
		LastName:     "User",
		IsActive:     true,
		IsAdmin:      true,
	}
	if err := m.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Println("✅ Created admin user: admin@example.com (password: admin123)")
	return nil
}

func (m *Migration) seedExams() error {
	exams := []exam.Exam{
		{
			Slug:            "aws-solutions-architect-associate",
			Title:           "AWS Certified Solutions Architect - Associate",
			Description:     "Practice exam covering the design of resilient, high-performing AWS architectures",
			Category:        "cloud",
			Vendor:          "AWS",
			PriceCents:      4999,
			QuestionCount:   65,
			DurationMinutes: 130,
			PassScore:       72,
			IsActive:        true,
		},
		{
			Slug:            "comptia-security-plus",
			Title:           "CompTIA Security+",
			Description:     "Practice exam for core security functions and risk management",
			Category:        "security",
			Vendor:          "CompTIA",
			PriceCents:      3999,
			QuestionCount:   90,
			DurationMinutes: 90,
			PassScore:       75,
			IsActive:        true,
		},
		{
			Slug:            "ckad",
			Title:           "Certified Kubernetes Application Developer",
			Description:     "Hands-on practice scenarios for designing and deploying applications on Kubernetes",
			Category:        "cloud",
			Vendor:          "CNCF",
			PriceCents:      5999,
			QuestionCount:   19,
			DurationMinutes: 120,
			PassScore:       66,
			IsActive:        true,
		},
	}

	for _, e := range exams {
		var existing exam.Exam
		result := m.db.Where("slug = ?", e.Slug).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&e).Error; err != nil {
				return err
			}
			log.Printf("✅ Created exam: %s", e.Title)
		} else {
			log.Printf("⏭️ Exam already exists: %s", e.Title)
		}
	}

	return nil
}

func (m *Migration) seedCoupons() error {
	coupons := []coupon.Coupon{
		{
			Code:         "WELCOME10",
			Kind:         coupon.KindPercentage,
			Value:        10,
			PerUserLimit: 1,
			IsActive:     true,
		},
		{
			Code:             "STUDY25",
			Kind:             coupon.KindFixed,
			Value:            2500,
			MinPurchaseCents: 7500,
			PerUserLimit:     1,
			IsActive:         true,
		},
	}

	for _, c := range coupons {
		var existing coupon.Coupon
		result := m.db.Where("code = ?", c.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&c).Error; err != nil {
				return err
			}
			log.Printf("✅ Created coupon: %s", c.Code)
		} else {
			log.Printf("⏭️ Coupon already exists: %s", c.Code)
		}
	}

	return nil
}
