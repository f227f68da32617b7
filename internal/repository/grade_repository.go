package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// GradeRepository persists grade entries per enrolled course and period.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindCourseRefs resolves course links to their enrollment status.
func (r *GradeRepository) FindCourseRefs(ctx context.Context, linkIDs []string) ([]models.EnrollmentCourseRef, error) {
	const query = `SELECT ec.id, ec.enrollment_id, ec.course_id, e.status AS enrollment_status, e.institution_id
        FROM enrollment_courses ec JOIN enrollments e ON e.id = ec.enrollment_id
        WHERE ec.id = ANY($1)`
	var refs []models.EnrollmentCourseRef
	if err := r.db.SelectContext(ctx, &refs, query, pq.StringArray(linkIDs)); err != nil {
		return nil, fmt.Errorf("find enrollment courses: %w", err)
	}
	return refs, nil
}

// Upsert stores the entries in one transaction, replacing the score of an existing
// (enrollment, course, period) triple.
func (r *GradeRepository) Upsert(ctx context.Context, entries []models.GradeEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO grade_entries (id, enrollment_id, course_id, period_id, score, comment, recorded_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :course_id, :period_id, :score, :comment, :recorded_by, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, course_id, period_id) DO UPDATE
        SET score = EXCLUDED.score, comment = EXCLUDED.comment, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		entries[i].CreatedAt, entries[i].UpdatedAt = now, now
		if _, err = tx.NamedExecContext(ctx, query, entries[i]); err != nil {
			return fmt.Errorf("upsert grade entry: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit grade upsert: %w", err)
	}
	return nil
}

// ListByEnrollment returns the scores of the courses currently linked to an enrollment. Scores of a
// course dropped by a recompute stay stored and reappear if the course is linked again.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeRow, error) {
	const query = `SELECT ec.id AS enrollment_course_id, c.id AS course_id, c.code AS course_code, c.name AS course_name,
        p.id AS period_id, p.number AS period_number, g.score
        FROM grade_entries g
        JOIN enrollment_courses ec ON ec.enrollment_id = g.enrollment_id AND ec.course_id = g.course_id
        JOIN courses c ON c.id = ec.course_id
        JOIN academic_periods p ON p.id = g.period_id
        WHERE g.enrollment_id = $1
        ORDER BY c.code, p.number`
	var rows []models.GradeRow
	if err := r.db.SelectContext(ctx, &rows, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return rows, nil
}
