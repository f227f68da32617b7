package models

import "time"

// Permission is a dotted capability key.
type Permission string

const (
	PermAcademicManage      Permission = "academic.manage"
	PermStudentsManage      Permission = "students.manage"
	PermEnrollmentsManage   Permission = "enrollments.manage"
	PermPaymentsManage      Permission = "payments.manage"
	PermPaymentsView        Permission = "payments.view"
	PermDocumentsIssue      Permission = "documents.issue"
	PermAnnouncementsManage Permission = "announcements.manage"
	PermEventsManage        Permission = "events.manage"
	PermPeriodsManage       Permission = "periods.manage"
	PermUsersManage         Permission = "users.manage"
	PermGradesRecord        Permission = "grades.record"
	PermAttendanceRecord    Permission = "attendance.record"
	PermReportsView         Permission = "reports.view"
)

// PermissionCatalogue lists every grantable permission.
var PermissionCatalogue = []Permission{
	PermAcademicManage,
	PermStudentsManage,
	PermEnrollmentsManage,
	PermPaymentsManage,
	PermPaymentsView,
	PermDocumentsIssue,
	PermAnnouncementsManage,
	PermEventsManage,
	PermPeriodsManage,
	PermUsersManage,
	PermGradesRecord,
	PermAttendanceRecord,
	PermReportsView,
}

// Valid reports whether p belongs to the catalogue.
func (p Permission) Valid() bool {
	for _, known := range PermissionCatalogue {
		if p == known {
			return true
		}
	}
	return false
}

// RolePermission grants a permission to every user of a role.
type RolePermission struct {
	Role       UserRole   `db:"role" json:"role"`
	Permission Permission `db:"permission" json:"permission"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// UserPermission overrides a role grant for one user. Allowed=false revokes.
type UserPermission struct {
	UserID     string     `db:"user_id" json:"user_id"`
	Permission Permission `db:"permission" json:"permission"`
	Allowed    bool       `db:"allowed" json:"allowed"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// EffectivePermissions is the resolved permission set of a user.
type EffectivePermissions struct {
	UserID      string       `json:"user_id"`
	Role        UserRole     `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Has reports whether p is granted.
func (e EffectivePermissions) Has(p Permission) bool {
	if e.Role == RoleSuperAdmin {
		return true
	}
	for _, granted := range e.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}
