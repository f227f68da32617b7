package models

import "time"

// CourseScope is the breadth at which a course applies.
type CourseScope string

const (
	CourseScopeSection     CourseScope = "SECTION_SPECIFIC"
	CourseScopeGrade       CourseScope = "WHOLE_GRADE"
	CourseScopeLevel       CourseScope = "WHOLE_LEVEL"
	CourseScopeInstitution CourseScope = "WHOLE_INSTITUTION"
)

// Valid reports whether s is a known scope.
func (s CourseScope) Valid() bool {
	switch s {
	case CourseScopeSection, CourseScopeGrade, CourseScopeLevel, CourseScopeInstitution:
		return true
	}
	return false
}

// Course belongs to a curricular area and applies to students according to its scope.
// Exactly the key selected by Scope is set: LevelAssignmentID for SECTION_SPECIFIC, GradeLevelID for
// WHOLE_GRADE, LevelID for WHOLE_LEVEL and none of them for WHOLE_INSTITUTION (InstitutionID is used).
type Course struct {
	ID                string      `db:"id" json:"id"`
	InstitutionID     string      `db:"institution_id" json:"institution_id"`
	AreaID            string      `db:"area_id" json:"area_id"`
	Code              string      `db:"code" json:"code"`
	Name              string      `db:"name" json:"name"`
	Scope             CourseScope `db:"scope" json:"scope"`
	LevelAssignmentID *string     `db:"level_assignment_id" json:"level_assignment_id,omitempty"`
	GradeLevelID      *string     `db:"grade_level_id" json:"grade_level_id,omitempty"`
	LevelID           *string     `db:"level_id" json:"level_id,omitempty"`
	AcademicYear      int         `db:"academic_year" json:"academic_year"`
	WeeklyHours       int         `db:"weekly_hours" json:"weekly_hours"`
	Active            bool        `db:"active" json:"active"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// ScopeKeysConsistent reports whether exactly the key selected by the scope is set.
func (c Course) ScopeKeysConsistent() bool {
	section, grade, level := c.LevelAssignmentID != nil, c.GradeLevelID != nil, c.LevelID != nil
	switch c.Scope {
	case CourseScopeSection:
		return section && !grade && !level
	case CourseScopeGrade:
		return !section && grade && !level
	case CourseScopeLevel:
		return !section && !grade && level
	case CourseScopeInstitution:
		return !section && !grade && !level
	}
	return false
}

// MatchesScope reports whether the course applies to a student placed according to criteria.
func (c Course) MatchesScope(criteria CourseScopeCriteria) bool {
	if !c.Active || c.AcademicYear != criteria.AcademicYear || !c.ScopeKeysConsistent() {
		return false
	}
	switch c.Scope {
	case CourseScopeSection:
		return *c.LevelAssignmentID == criteria.LevelAssignmentID
	case CourseScopeGrade:
		return *c.GradeLevelID == criteria.GradeLevelID
	case CourseScopeLevel:
		return *c.LevelID == criteria.LevelID
	case CourseScopeInstitution:
		return c.InstitutionID == criteria.InstitutionID
	}
	return false
}

// CourseScopeCriteria are the keys a student's placement exposes to course scopes.
type CourseScopeCriteria struct {
	LevelAssignmentID string
	GradeLevelID      string
	LevelID           string
	InstitutionID     string
	AcademicYear      int
}

// CourseDetail adds the area name to a course.
type CourseDetail struct {
	Course
	AreaName string `db:"area_name" json:"area_name"`
}

// CourseFilter scopes course listings.
type CourseFilter struct {
	InstitutionID     string
	AreaID            string
	Scope             CourseScope
	AcademicYear      int
	LevelAssignmentID string
	Active            *bool
	Search            string
	Page              int
	PageSize          int
}
