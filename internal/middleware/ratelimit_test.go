package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/cache"
	"github.com/charlesng35/lockgate/internal/database/testutil"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemoryRateStore(clock.Now, time.Hour)
	t.Cleanup(store.Close)

	r := gin.New()
	r.Use(RateLimit(store, 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := serve(r, http.MethodGet, "/ping", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(r, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	clock.Advance(time.Minute)
	w = serve(r, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitByDeviceKeyOrOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewMemoryRateStore()
	t.Cleanup(store.Close)

	calls := 0
	r := gin.New()
	r.POST("/validate", RateLimitByKey(store, "validate_pin", 1, time.Minute, DeviceKeyOrOrigin("validate_pin")), func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/validate", map[string]string{DeviceAPIKeyHeader: "key-a"}).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/validate", map[string]string{DeviceAPIKeyHeader: "key-a"}).Code)

	// separate buckets per key and for keyless callers
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/validate", map[string]string{DeviceAPIKeyHeader: "key-b"}).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/validate", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/validate", nil).Code)

	require.Equal(t, 3, calls)
}

func TestDeviceKeyOrOriginKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.RemoteAddr = "198.51.100.4:5000"

	keyFunc := DeviceKeyOrOrigin("validate_pin")
	require.Equal(t, "validate_pin:ip:198.51.100.4", keyFunc(c))

	c.Request.Header.Set(DeviceAPIKeyHeader, "abc")
	require.Equal(t, "validate_pin:abc", keyFunc(c))
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(brokenStore{}, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
	}
}

func TestDatabaseRateStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseRateStore(cache.NewDatabaseStore(db))
	require.NotNil(t, store)
	require.Nil(t, NewDatabaseRateStore(nil))

	r := gin.New()
	r.Use(RateLimit(store, 2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/ping", nil).Code)
}
