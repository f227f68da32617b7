package models

import "time"

// Event is a dated entry of an institution calendar.
type Event struct {
	ID                string    `db:"id" json:"id"`
	InstitutionID     string    `db:"institution_id" json:"institution_id"`
	Title             string    `db:"title" json:"title"`
	Description       string    `db:"description" json:"description"`
	StartAt           time.Time `db:"start_at" json:"start_at"`
	EndAt             time.Time `db:"end_at" json:"end_at"`
	Location          string    `db:"location" json:"location"`
	Audience          Audience  `db:"audience" json:"audience"`
	LevelAssignmentID *string   `db:"level_assignment_id" json:"level_assignment_id,omitempty"`
	CreatedBy         *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// EventFilter returns events overlapping [From, To].
type EventFilter struct {
	InstitutionID string
	From          *time.Time
	To            *time.Time
	Audience      Audience
	Page          int
	PageSize      int
}
