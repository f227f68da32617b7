package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the daily attendance of one enrollment.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        string           `db:"notes" json:"notes"`
	RecordedBy   *string          `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceSummary counts statuses for an enrollment.
type AttendanceSummary struct {
	EnrollmentID string  `json:"enrollment_id"`
	Present      int     `db:"present" json:"present"`
	Absent       int     `db:"absent" json:"absent"`
	Late         int     `db:"late" json:"late"`
	Excused      int     `db:"excused" json:"excused"`
	Total        int     `db:"total" json:"total"`
	Rate         float64 `json:"rate"`
}
