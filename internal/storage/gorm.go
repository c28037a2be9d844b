// Package storage persists graded submissions to a relational database.
package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/submission"
	"github.com/noah-isme/gema-exec/internal/tier"
)

// SubmissionRecord is the database row for one graded submission.
type SubmissionRecord struct {
	ID             string             `gorm:"primaryKey;size:36" json:"id"`
	UserID         string             `gorm:"size:64;not null;index" json:"user_id"`
	ExerciseID     string             `gorm:"size:64;not null;index" json:"exercise_id"`
	Language       string             `gorm:"size:32;not null" json:"language"`
	Source         string             `gorm:"type:text" json:"source"`
	Tier           string             `gorm:"size:16;not null" json:"tier"`
	Status         string             `gorm:"size:32;not null" json:"status"`
	Error          string             `gorm:"type:text" json:"error"`
	TestsPassed    int                `gorm:"default:0" json:"tests_passed"`
	EarnedPoints   int                `gorm:"default:0" json:"earned_points"`
	PossiblePoints int                `gorm:"default:0" json:"possible_points"`
	AvgWallTimeMs  int64              `gorm:"default:0" json:"avg_wall_time_ms"`
	MaxMemoryKB    int64              `gorm:"default:0" json:"max_memory_kb"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Results        []TestResultRecord `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results"`
}

// TestResultRecord is the database row for one test case run of a submission.
type TestResultRecord struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID string `gorm:"size:36;not null;index" json:"submission_id"`
	TestID       string `gorm:"size:64;not null" json:"test_id"`
	Name         string `gorm:"size:128" json:"name"`
	Hidden       bool   `gorm:"default:false" json:"hidden"`
	Passed       bool   `gorm:"default:false" json:"passed"`
	Points       int    `gorm:"default:0" json:"points"`
	Status       string `gorm:"size:32;not null" json:"status"`
	Stdout       string `gorm:"type:text" json:"stdout"`
	Stderr       string `gorm:"type:text" json:"stderr"`
	ExitCode     int    `gorm:"default:0" json:"exit_code"`
	WallTimeMs   int64  `gorm:"default:0" json:"wall_time_ms"`
	MemoryKB     int64  `gorm:"default:0" json:"memory_kb"`
}

// GormStore implements submission.Store on top of GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs the store and migrates its tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SubmissionRecord{}, &TestResultRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, sub *submission.Submission) error {
	record := recordFromSubmission(sub)
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, status execution.Status, errMsg string) error {
	res := s.db.WithContext(ctx).
		Model(&SubmissionRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "error": errMsg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return submission.ErrNotFound
	}
	return nil
}

// SaveResults writes the terminal submission row and its per-test results in
// one transaction so readers never observe a terminal status without results.
func (s *GormStore) SaveResults(ctx context.Context, sub *submission.Submission, batch grading.BatchResult) error {
	// A column map forces zero values through; struct updates would skip them.
	columns := map[string]any{
		"status":           string(sub.Status),
		"error":            sub.Error,
		"tests_passed":     sub.TestsPassed,
		"earned_points":    sub.EarnedPoints,
		"possible_points":  sub.PossiblePoints,
		"avg_wall_time_ms": sub.AvgWallTimeMs,
		"max_memory_kb":    sub.MaxMemoryKB,
		"updated_at":       sub.UpdatedAt,
	}
	rows := make([]TestResultRecord, 0, len(batch.Results))
	for _, r := range batch.Results {
		rows = append(rows, resultRow(sub.ID, r))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SubmissionRecord{}).Where("id = ?", sub.ID).Updates(columns)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return submission.ErrNotFound
		}
		if err := tx.Where("submission_id = ?", sub.ID).Delete(&TestResultRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*submission.Submission, error) {
	var record SubmissionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, submission.ErrNotFound
		}
		return nil, err
	}
	sub := record.toSubmission()
	return &sub, nil
}

// GetResults loads the persisted per-test rows for a submission.
func (s *GormStore) GetResults(ctx context.Context, id string) ([]TestResultRecord, error) {
	var rows []TestResultRecord
	err := s.db.WithContext(ctx).
		Where("submission_id = ?", id).
		Order("id asc").
		Find(&rows).Error
	return rows, err
}

func recordFromSubmission(sub *submission.Submission) SubmissionRecord {
	return SubmissionRecord{
		ID:             sub.ID,
		UserID:         sub.UserID,
		ExerciseID:     sub.ExerciseID,
		Language:       sub.Language,
		Source:         sub.Source,
		Tier:           string(sub.Tier),
		Status:         string(sub.Status),
		Error:          sub.Error,
		TestsPassed:    sub.TestsPassed,
		EarnedPoints:   sub.EarnedPoints,
		PossiblePoints: sub.PossiblePoints,
		AvgWallTimeMs:  sub.AvgWallTimeMs,
		MaxMemoryKB:    sub.MaxMemoryKB,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
}

func (r SubmissionRecord) toSubmission() submission.Submission {
	return submission.Submission{
		ID:             r.ID,
		UserID:         r.UserID,
		ExerciseID:     r.ExerciseID,
		Language:       r.Language,
		Source:         r.Source,
		Tier:           tier.Tier(r.Tier),
		Status:         execution.Status(r.Status),
		Error:          r.Error,
		TestsPassed:    r.TestsPassed,
		EarnedPoints:   r.EarnedPoints,
		PossiblePoints: r.PossiblePoints,
		AvgWallTimeMs:  r.AvgWallTimeMs,
		MaxMemoryKB:    r.MaxMemoryKB,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func resultRow(submissionID string, r grading.TestResult) TestResultRecord {
	return TestResultRecord{
		SubmissionID: submissionID,
		TestID:       r.TestID,
		Name:         r.Name,
		Hidden:       r.Hidden,
		Passed:       r.Passed,
		Points:       r.Points,
		Status:       string(r.Outcome.Status),
		Stdout:       r.Outcome.Stdout,
		Stderr:       r.Outcome.Stderr,
		ExitCode:     r.Outcome.ExitCode,
		WallTimeMs:   r.Outcome.WallTime.Milliseconds(),
		MemoryKB:     r.Outcome.MemoryBytes / 1024,
	}
}
