package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/school-suite-api/pkg/config"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("create enrollment: %w", &pq.Error{Code: CodeUniqueViolation, Constraint: "enrollments_student_year_key"})

	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(err, "other_key", "enrollments_student_year_key"))
	assert.False(t, IsUniqueViolation(err, "students_code_key"))
	assert.False(t, IsForeignKeyViolation(err))
}

func TestConstraintViolationIgnoresOtherErrors(t *testing.T) {
	_, ok := ConstraintViolation(fmt.Errorf("boom"), CodeUniqueViolation)
	assert.False(t, ok)

	fk := &pq.Error{Code: CodeForeignKeyViolation, Constraint: "enrollments_student_id_fkey"}
	assert.True(t, IsForeignKeyViolation(fk, "enrollments_student_id_fkey"))
	assert.False(t, IsCheckViolation(fk))
}

func TestURL(t *testing.T) {
	cfgURL := URL(config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "s@cret", Name: "school", SSLMode: "disable"})
	assert.Equal(t, "postgres://app:s%40cret@db:5432/school?sslmode=disable", cfgURL)
}
