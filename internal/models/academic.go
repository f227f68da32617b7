package models

import (
	"strconv"
	"time"
)

// Level is an academic level of an institution (INICIAL, PRIMARIA, SECUNDARIA...).
type Level struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	SortOrder     int       `db:"sort_order" json:"sort_order"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// GradeLevel is a numbered grade inside a level.
type GradeLevel struct {
	ID        string    `db:"id" json:"id"`
	LevelID   string    `db:"level_id" json:"level_id"`
	Number    int       `db:"number" json:"number"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CurricularArea groups courses (Mathematics, Communication...).
type CurricularArea struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// LevelAssignment identifies a (level, grade, section) slot of an institution for one academic year.
type LevelAssignment struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	LevelID       string    `db:"level_id" json:"level_id"`
	GradeLevelID  string    `db:"grade_level_id" json:"grade_level_id"`
	Section       string    `db:"section" json:"section"`
	AcademicYear  int       `db:"academic_year" json:"academic_year"`
	Capacity      int       `db:"capacity" json:"capacity"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ScopeCriteria returns the keys a course must match to apply to this assignment in year.
func (a LevelAssignment) ScopeCriteria(year int) CourseScopeCriteria {
	return CourseScopeCriteria{
		LevelAssignmentID: a.ID,
		GradeLevelID:      a.GradeLevelID,
		LevelID:           a.LevelID,
		InstitutionID:     a.InstitutionID,
		AcademicYear:      year,
	}
}

// LevelAssignmentDetail adds display labels to a level assignment.
type LevelAssignmentDetail struct {
	LevelAssignment
	LevelCode     string `db:"level_code" json:"level_code"`
	LevelName     string `db:"level_name" json:"level_name"`
	GradeNumber   int    `db:"grade_number" json:"grade_number"`
	GradeName     string `db:"grade_name" json:"grade_name"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// Label renders "PRIMARIA 3B".
func (d LevelAssignmentDetail) Label() string {
	return d.LevelCode + " " + strconv.Itoa(d.GradeNumber) + d.Section
}

// LevelAssignmentFilter scopes listing of level assignments.
type LevelAssignmentFilter struct {
	InstitutionID string
	LevelID       string
	GradeLevelID  string
	AcademicYear  int
	Page          int
	PageSize      int
}
