package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiterRejectsAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := New(0.001, 2, nil)

	r := gin.New()
	r.GET("/verify", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimiterKeysByClient(t *testing.T) {
	limiter := New(0.001, 1, nil)
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
}

func TestSweepRemovesIdleVisitors(t *testing.T) {
	limiter := New(1, 1, nil)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	limiter.Allow("old")

	limiter.now = func() time.Time { return base.Add(time.Hour) }
	limiter.Allow("fresh")

	assert.Equal(t, 1, limiter.Sweep())
	assert.Len(t, limiter.visitors, 1)
}

func TestOnRejectCallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rejected := 0
	limiter := New(0.001, 1, nil).OnReject(func() { rejected++ })

	r := gin.New()
	r.GET("/verify", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, rejected)
}
