package models

import "time"

// DocumentType enumerates issuable documents.
type DocumentType string

const (
	DocumentEnrollmentCertificate DocumentType = "ENROLLMENT_CERTIFICATE"
	DocumentStudyCertificate      DocumentType = "STUDY_CERTIFICATE"
	DocumentConductCertificate    DocumentType = "CONDUCT_CERTIFICATE"
	DocumentTranscript            DocumentType = "TRANSCRIPT"
)

// Valid reports whether t is a known type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentEnrollmentCertificate, DocumentStudyCertificate, DocumentConductCertificate, DocumentTranscript:
		return true
	}
	return false
}

// DefaultTitle is used when the issuer leaves the title empty.
func (t DocumentType) DefaultTitle() string {
	switch t {
	case DocumentEnrollmentCertificate:
		return "Enrollment Certificate"
	case DocumentStudyCertificate:
		return "Certificate of Studies"
	case DocumentConductCertificate:
		return "Certificate of Conduct"
	case DocumentTranscript:
		return "Academic Transcript"
	}
	return "Certificate"
}

// DocumentStatus tracks revocation.
type DocumentStatus string

const (
	DocumentStatusIssued  DocumentStatus = "ISSUED"
	DocumentStatusRevoked DocumentStatus = "REVOKED"
)

// Document is an issued certificate carrying a public verification code.
type Document struct {
	ID               string         `db:"id" json:"id"`
	InstitutionID    string         `db:"institution_id" json:"institution_id"`
	StudentID        string         `db:"student_id" json:"student_id"`
	Type             DocumentType   `db:"type" json:"type"`
	Title            string         `db:"title" json:"title"`
	Body             string         `db:"body" json:"body"`
	VerificationCode string         `db:"verification_code" json:"verification_code"`
	Status           DocumentStatus `db:"status" json:"status"`
	FilePath         *string        `db:"file_path" json:"-"`
	IssuedBy         *string        `db:"issued_by" json:"issued_by,omitempty"`
	IssuedAt         time.Time      `db:"issued_at" json:"issued_at"`
	RevokedAt        *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokeReason     *string        `db:"revoke_reason" json:"revoke_reason,omitempty"`
}

// DocumentDetail adds the labels used to render and verify a document.
type DocumentDetail struct {
	Document
	StudentCode     string  `db:"student_code" json:"student_code"`
	StudentName     string  `db:"student_name" json:"student_name"`
	InstitutionName string  `db:"institution_name" json:"institution_name"`
	InstitutionLogo *string `db:"institution_logo" json:"-"`
	Rendered        bool    `db:"-" json:"rendered"`
}

// DocumentFilter scopes document listings.
type DocumentFilter struct {
	InstitutionID string
	StudentID     string
	Type          DocumentType
	Status        DocumentStatus
	Page          int
	PageSize      int
}

// VerificationResult is the public answer for a verification code.
type VerificationResult struct {
	Valid           bool           `json:"valid"`
	Code            string         `json:"code"`
	Status          DocumentStatus `json:"status,omitempty"`
	Type            DocumentType   `json:"type,omitempty"`
	Title           string         `json:"title,omitempty"`
	StudentName     string         `json:"student_name,omitempty"`
	InstitutionName string         `json:"institution_name,omitempty"`
	IssuedAt        *time.Time     `json:"issued_at,omitempty"`
	RevokedAt       *time.Time     `json:"revoked_at,omitempty"`
}
