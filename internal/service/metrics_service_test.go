package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRegistryGathersDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordEnrollmentOperation("create", "ok")
	m.RecordEnrollmentOperation("create", "ok")
	m.ObserveHTTPRequest("GET", "/api/v1/enrollments", 200, 5*time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var enrollmentOps float64
	for _, family := range families {
		if family.GetName() != "enrollment_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			enrollmentOps += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), enrollmentOps)
	assert.Equal(t, uint64(1), m.Snapshot().RequestsTotal)
}

func TestMetricsServiceDisabledIsSafe(t *testing.T) {
	var m *MetricsService
	assert.Nil(t, m.Registry())
	assert.NotPanics(t, func() {
		m.RecordEnrollmentOperation("update", "error")
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordRateLimited()
	})
	assert.Zero(t, m.Snapshot().RequestsTotal)
}
