package models

import "time"

// Audience defines who can see an announcement or event.
type Audience string

const (
	AudienceAll       Audience = "ALL"
	AudienceStaff     Audience = "STAFF"
	AudienceStudents  Audience = "STUDENTS"
	AudienceGuardians Audience = "GUARDIANS"
	AudienceSection   Audience = "SECTION"
)

// Valid reports whether a is a known audience.
func (a Audience) Valid() bool {
	switch a {
	case AudienceAll, AudienceStaff, AudienceStudents, AudienceGuardians, AudienceSection:
		return true
	}
	return false
}

// AnnouncementPriority defines ordering for announcements.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow    AnnouncementPriority = "LOW"
	AnnouncementPriorityNormal AnnouncementPriority = "NORMAL"
	AnnouncementPriorityHigh   AnnouncementPriority = "HIGH"
)

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID                string               `db:"id" json:"id"`
	InstitutionID     string               `db:"institution_id" json:"institution_id"`
	Title             string               `db:"title" json:"title"`
	Content           string               `db:"content" json:"content"`
	Audience          Audience             `db:"audience" json:"audience"`
	LevelAssignmentID *string              `db:"level_assignment_id" json:"level_assignment_id,omitempty"`
	Priority          AnnouncementPriority `db:"priority" json:"priority"`
	Pinned            bool                 `db:"pinned" json:"pinned"`
	PublishedAt       time.Time            `db:"published_at" json:"published_at"`
	ExpiresAt         *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy         *string              `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter allows listing announcements. Empty Audiences means every audience.
type AnnouncementFilter struct {
	InstitutionID      string
	Audiences          []Audience
	LevelAssignmentIDs []string
	ActiveAt           *time.Time
	Page               int
	PageSize           int
}
