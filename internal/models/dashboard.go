package models

import "time"

// DashboardSummary is the institution overview for one academic year.
type DashboardSummary struct {
	InstitutionID       string                   `json:"institution_id"`
	AcademicYear        int                      `json:"academic_year"`
	Students            int                      `json:"students"`
	LevelAssignments    int                      `json:"level_assignments"`
	Courses             int                      `json:"courses"`
	EnrollmentsByStatus map[EnrollmentStatus]int `json:"enrollments_by_status"`
	OutstandingTotal    int64                    `json:"outstanding_total"`
	OverdueInvoices     int                      `json:"overdue_invoices"`
	CollectedThisMonth  int64                    `json:"collected_this_month"`
	UpcomingEvents      int                      `json:"upcoming_events"`
	ActiveAnnouncements int                      `json:"active_announcements"`
	GeneratedAt         time.Time                `json:"generated_at"`
}

// SystemMetrics is a lightweight in-process snapshot of the service counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
