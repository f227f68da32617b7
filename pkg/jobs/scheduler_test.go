package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(nil, 0)
	err := s.Add("sweep", "not a spec", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerRunsTask(t *testing.T) {
	s := NewScheduler(nil, time.Second)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("sweep", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	assert.Equal(t, 1, s.Len())

	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("task did not run")
	}
}
