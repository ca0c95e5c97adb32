package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})
}

func TestAccessLogCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	AccessLog(zerolog.Nop(), "test", ok()).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "tea", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(rate.NewLimiter(rate.Limit(0.001), 1), ok())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"detail":"too many requests"}`, rec.Body.String())

	assert.NotNil(t, RateLimit(nil, ok()))
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("process-image", []byte(`{"limit":5}`))
	assert.Equal(t, a, CacheKey("process-image", []byte(`{"limit":5}`)))
	assert.NotEqual(t, a, CacheKey("process-image", []byte(`{"limit":6}`)))
	assert.Regexp(t, `^geo:process-image:[0-9a-f]{64}$`, a)
}

func TestContextStartCreatesCollection(t *testing.T) {
	config := settings.Default()
	config.VectorDB.Dimensions = 4
	config.VectorDB.PollDelayMs = 1
	config.Server.RateLimitQPS = 10

	db := vectors.NewMemory()
	ctx := NewContext(config, zerolog.Nop(), db, nil, nil)
	require.NotNil(t, ctx.Limiter)
	assert.Equal(t, 11, ctx.Limiter.Burst())

	started := false
	require.NoError(t, ctx.Start(context.Background(), func(*Context) { started = true }))
	assert.True(t, started)

	missing, err := db.Missing(context.Background(), config.VectorDB.Collection, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, missing)
	require.NoError(t, ctx.Close())
}
