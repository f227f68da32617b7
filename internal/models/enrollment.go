package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending     EnrollmentStatus = "PENDING"
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn   EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusGraduated   EnrollmentStatus = "GRADUATED"
)

// EnrollmentStatuses lists every accepted status.
var EnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusActive,
	EnrollmentStatusWithdrawn,
	EnrollmentStatusTransferred,
	EnrollmentStatusGraduated,
}

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	for _, known := range EnrollmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseEnrollmentStatus normalises case and whitespace. ok is false for unknown values.
func ParseEnrollmentStatus(raw string) (EnrollmentStatus, bool) {
	status := EnrollmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Enrollment binds a student to a level assignment for one academic year.
type Enrollment struct {
	ID                string           `db:"id" json:"id"`
	InstitutionID     string           `db:"institution_id" json:"institution_id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	LevelAssignmentID string           `db:"level_assignment_id" json:"level_assignment_id"`
	AcademicYear      int              `db:"academic_year" json:"academic_year"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	Notes             string           `db:"notes" json:"notes"`
	EnrolledAt        time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentCourseLink joins an enrollment with one applicable course.
type EnrollmentCourseLink struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentCourse is a linked course as shown on an enrollment.
type EnrollmentCourse struct {
	LinkID   string      `db:"link_id" json:"link_id"`
	CourseID string      `db:"course_id" json:"course_id"`
	Code     string      `db:"code" json:"code"`
	Name     string      `db:"name" json:"name"`
	Scope    CourseScope `db:"scope" json:"scope"`
	AreaName string      `db:"area_name" json:"area_name"`
}

// EnrollmentDetail enriches Enrollment with student, placement and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentCode string             `db:"student_code" json:"student_code"`
	StudentName string             `db:"student_name" json:"student_name"`
	LevelCode   string             `db:"level_code" json:"level_code"`
	GradeNumber int                `db:"grade_number" json:"grade_number"`
	Section     string             `db:"section" json:"section"`
	CourseCount int                `db:"course_count" json:"course_count"`
	Courses     []EnrollmentCourse `db:"-" json:"courses,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	InstitutionID     string
	StudentID         string
	LevelAssignmentID string
	AcademicYear      int
	Status            EnrollmentStatus
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
