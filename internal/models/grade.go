package models

import "time"

// Score bounds on the vigesimal scale.
const (
	MinScore = 0.0
	MaxScore = 20.0
)

// GradeEntry is the score of one enrolled course in one period. It is keyed by enrollment and course
// so it outlives the replacement of the enrollment's course links.
type GradeEntry struct {
	ID                 string    `db:"id" json:"id"`
	EnrollmentID       string    `db:"enrollment_id" json:"enrollment_id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	EnrollmentCourseID string    `db:"-" json:"enrollment_course_id"`
	PeriodID           string    `db:"period_id" json:"period_id"`
	Score              float64   `db:"score" json:"score"`
	Comment            string    `db:"comment" json:"comment"`
	RecordedBy         *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// GradeRow is a grade entry flattened with course and period labels.
type GradeRow struct {
	EnrollmentCourseID string  `db:"enrollment_course_id" json:"enrollment_course_id"`
	CourseID           string  `db:"course_id" json:"course_id"`
	CourseCode         string  `db:"course_code" json:"course_code"`
	CourseName         string  `db:"course_name" json:"course_name"`
	PeriodID           string  `db:"period_id" json:"period_id"`
	PeriodNumber       int     `db:"period_number" json:"period_number"`
	Score              float64 `db:"score" json:"score"`
}

// ReportCard lists courses with per-period scores and averages.
type ReportCard struct {
	EnrollmentID string             `json:"enrollment_id"`
	AcademicYear int                `json:"academic_year"`
	Courses      []ReportCardCourse `json:"courses"`
	Average      *float64           `json:"average,omitempty"`
}

// ReportCardCourse is one row of a report card. Scores are keyed by period number.
type ReportCardCourse struct {
	CourseID   string          `json:"course_id"`
	CourseCode string          `json:"course_code"`
	CourseName string          `json:"course_name"`
	Scores     map[int]float64 `json:"scores"`
	Average    *float64        `json:"average,omitempty"`
}

// EnrollmentCourseRef resolves a course link to its enrollment and status.
type EnrollmentCourseRef struct {
	ID               string           `db:"id" json:"id"`
	EnrollmentID     string           `db:"enrollment_id" json:"enrollment_id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	EnrollmentStatus EnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	InstitutionID    string           `db:"institution_id" json:"institution_id"`
}
