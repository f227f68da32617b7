package models

import "time"

// PeriodType defines how an academic year is divided.
type PeriodType string

const (
	PeriodTypeBimester  PeriodType = "BIMESTER"
	PeriodTypeTrimester PeriodType = "TRIMESTER"
	PeriodTypeSemester  PeriodType = "SEMESTER"
	PeriodTypeAnnual    PeriodType = "ANNUAL"
)

// PeriodsPerYear returns how many periods of this type fit in a year, 0 for unknown types.
func (t PeriodType) PeriodsPerYear() int {
	switch t {
	case PeriodTypeBimester:
		return 4
	case PeriodTypeTrimester:
		return 3
	case PeriodTypeSemester:
		return 2
	case PeriodTypeAnnual:
		return 1
	}
	return 0
}

// AcademicPeriod is one division of an institution's academic year.
type AcademicPeriod struct {
	ID            string     `db:"id" json:"id"`
	InstitutionID string     `db:"institution_id" json:"institution_id"`
	AcademicYear  int        `db:"academic_year" json:"academic_year"`
	Type          PeriodType `db:"type" json:"type"`
	Number        int        `db:"number" json:"number"`
	Name          string     `db:"name" json:"name"`
	StartDate     time.Time  `db:"start_date" json:"start_date"`
	EndDate       time.Time  `db:"end_date" json:"end_date"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Contains reports whether day falls inside the period, both ends inclusive.
func (p AcademicPeriod) Contains(day time.Time) bool {
	d := day.UTC().Truncate(24 * time.Hour)
	return !d.Before(p.StartDate.UTC().Truncate(24*time.Hour)) && !d.After(p.EndDate.UTC().Truncate(24*time.Hour))
}

// PeriodFilter scopes period listings.
type PeriodFilter struct {
	InstitutionID string
	AcademicYear  int
	Type          PeriodType
	Active        *bool
}
