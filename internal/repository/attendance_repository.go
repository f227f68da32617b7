package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// AttendanceRepository persists daily attendance per enrollment.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert stores records in one transaction, replacing an existing (enrollment, date) entry.
func (r *AttendanceRepository) Upsert(ctx context.Context, records []models.AttendanceRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendance_records (id, enrollment_id, date, status, notes, recorded_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :date, :status, :notes, :recorded_by, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, date) DO UPDATE
        SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].CreatedAt, records[i].UpdatedAt = now, now
		if _, err = tx.NamedExecContext(ctx, query, records[i]); err != nil {
			return fmt.Errorf("upsert attendance: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance upsert: %w", err)
	}
	return nil
}

// ListByEnrollment returns attendance between from and to inclusive.
func (r *AttendanceRepository) ListByEnrollment(ctx context.Context, enrollmentID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, enrollment_id, date, status, notes, recorded_by, created_at, updated_at
        FROM attendance_records WHERE enrollment_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, enrollmentID, from, to); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// Summary counts statuses of an enrollment.
func (r *AttendanceRepository) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
        COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
        COUNT(*) FILTER (WHERE status = 'LATE') AS late,
        COUNT(*) FILTER (WHERE status = 'EXCUSED') AS excused,
        COUNT(*) AS total
        FROM attendance_records WHERE enrollment_id = $1`
	summary := models.AttendanceSummary{EnrollmentID: enrollmentID}
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	if summary.Total > 0 {
		summary.Rate = float64(summary.Present+summary.Late) / float64(summary.Total)
	}
	return &summary, nil
}
