package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type memCacheRepo struct {
	store   map[string][]byte
	pingErr error
}

func (s *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *memCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.store, key)
	}
	return nil
}

func (s *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
			n++
		}
	}
	return n, nil
}

func (s *memCacheRepo) Ping(context.Context) error { return s.pingErr }

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := &memCacheRepo{store: map[string][]byte{}}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var got []string
	hit, err := svc.Get(ctx, cachePrefixEnrollments+"inst-1:a", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, cachePrefixEnrollments+"inst-1:a", []string{"e-1"}, 0))
	require.NoError(t, svc.Set(ctx, cachePrefixDashboard+"inst-1", map[string]int{"students": 3}, 0))

	hit, err = svc.Get(ctx, cachePrefixEnrollments+"inst-1:a", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"e-1"}, got)

	require.NoError(t, svc.Invalidate(ctx, cachePrefixEnrollments+"inst-1:*"))
	assert.NotContains(t, repo.store, cachePrefixEnrollments+"inst-1:a")
	assert.Contains(t, repo.store, cachePrefixDashboard+"inst-1")
}

func TestCacheServiceDisabledIsInert(t *testing.T) {
	svc := NewCacheService(nil, nil, time.Minute, zap.NewNop(), true)
	assert.False(t, svc.Enabled())

	var dest string
	hit, err := svc.Get(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	assert.NoError(t, svc.Ping(context.Background()))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServicePingDelegates(t *testing.T) {
	repo := &memCacheRepo{store: map[string][]byte{}, pingErr: errors.New("connection refused")}
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	assert.EqualError(t, svc.Ping(context.Background()), "connection refused")
}
