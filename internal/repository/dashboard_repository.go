package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// DashboardRepository aggregates institution counters.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

type dashboardCounters struct {
	Students            int   `db:"students"`
	LevelAssignments    int   `db:"level_assignments"`
	Courses             int   `db:"courses"`
	OutstandingTotal    int64 `db:"outstanding_total"`
	OverdueInvoices     int   `db:"overdue_invoices"`
	CollectedThisMonth  int64 `db:"collected_this_month"`
	UpcomingEvents      int   `db:"upcoming_events"`
	ActiveAnnouncements int   `db:"active_announcements"`
}

type statusCount struct {
	Status models.EnrollmentStatus `db:"status"`
	Total  int                     `db:"total"`
}

// Summary computes the dashboard for an institution and year as of now.
func (r *DashboardRepository) Summary(ctx context.Context, institutionID string, year int, now time.Time) (*models.DashboardSummary, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	const query = `SELECT
        (SELECT COUNT(*) FROM students WHERE institution_id = $1 AND active) AS students,
        (SELECT COUNT(*) FROM level_assignments WHERE institution_id = $1 AND academic_year = $2) AS level_assignments,
        (SELECT COUNT(*) FROM courses WHERE institution_id = $1 AND academic_year = $2 AND active) AS courses,
        (SELECT COALESCE(SUM(amount - paid_amount), 0) FROM invoices WHERE institution_id = $1 AND status IN ('PENDING', 'PARTIAL', 'OVERDUE')) AS outstanding_total,
        (SELECT COUNT(*) FROM invoices WHERE institution_id = $1 AND status = 'OVERDUE') AS overdue_invoices,
        (SELECT COALESCE(SUM(p.amount), 0) FROM payments p JOIN invoices i ON i.id = p.invoice_id
            WHERE i.institution_id = $1 AND p.paid_at >= $4) AS collected_this_month,
        (SELECT COUNT(*) FROM events WHERE institution_id = $1 AND start_at >= $3 AND start_at < $3::timestamptz + INTERVAL '7 days') AS upcoming_events,
        (SELECT COUNT(*) FROM announcements WHERE institution_id = $1 AND published_at <= $3 AND (expires_at IS NULL OR expires_at > $3)) AS active_announcements`

	var counters dashboardCounters
	if err := r.db.GetContext(ctx, &counters, query, institutionID, year, now, monthStart); err != nil {
		return nil, fmt.Errorf("dashboard counters: %w", err)
	}

	var statuses []statusCount
	if err := r.db.SelectContext(ctx, &statuses, `SELECT status, COUNT(*) AS total FROM enrollments
        WHERE institution_id = $1 AND academic_year = $2 GROUP BY status`, institutionID, year); err != nil {
		return nil, fmt.Errorf("dashboard enrollments: %w", err)
	}

	summary := &models.DashboardSummary{
		InstitutionID:       institutionID,
		AcademicYear:        year,
		Students:            counters.Students,
		LevelAssignments:    counters.LevelAssignments,
		Courses:             counters.Courses,
		EnrollmentsByStatus: make(map[models.EnrollmentStatus]int, len(models.EnrollmentStatuses)),
		OutstandingTotal:    counters.OutstandingTotal,
		OverdueInvoices:     counters.OverdueInvoices,
		CollectedThisMonth:  counters.CollectedThisMonth,
		UpcomingEvents:      counters.UpcomingEvents,
		ActiveAnnouncements: counters.ActiveAnnouncements,
		GeneratedAt:         now,
	}
	for _, status := range models.EnrollmentStatuses {
		summary.EnrollmentsByStatus[status] = 0
	}
	for _, s := range statuses {
		summary.EnrollmentsByStatus[s.Status] = s.Total
	}
	return summary, nil
}
