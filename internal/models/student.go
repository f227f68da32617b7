package models

import "time"

// Student represents a learner registered in an institution.
type Student struct {
	ID                       string     `db:"id" json:"id"`
	InstitutionID            string     `db:"institution_id" json:"institution_id"`
	Code                     string     `db:"code" json:"code"`
	FirstName                string     `db:"first_name" json:"first_name"`
	LastName                 string     `db:"last_name" json:"last_name"`
	DocumentNumber           string     `db:"document_number" json:"document_number"`
	BirthDate                *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender                   string     `db:"gender" json:"gender"`
	GuardianName             string     `db:"guardian_name" json:"guardian_name"`
	GuardianPhone            string     `db:"guardian_phone" json:"guardian_phone"`
	Address                  string     `db:"address" json:"address"`
	Active                   bool       `db:"active" json:"active"`
	CurrentLevelAssignmentID *string    `db:"current_level_assignment_id" json:"current_level_assignment_id,omitempty"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName renders "last, first" as used on rosters.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.LastName + ", " + s.FirstName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	InstitutionID     string
	Search            string
	LevelAssignmentID string
	Active            *bool
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// StudentDetail contains student information with current placement labels.
type StudentDetail struct {
	Student
	CurrentLevelCode *string `db:"current_level_code" json:"current_level_code,omitempty"`
	CurrentGrade     *int    `db:"current_grade" json:"current_grade,omitempty"`
	CurrentSection   *string `db:"current_section" json:"current_section,omitempty"`
}
