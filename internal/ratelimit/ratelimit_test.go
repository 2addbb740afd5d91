package ratelimit_test

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/byaboneka/byaboneka/internal/ratelimit"
	"github.com/byaboneka/byaboneka/internal/testutil"
)

var testRedis *redis.Client

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ratelimit_test: start redis: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ratelimit_test: endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedis = redis.NewClient(&redis.Options{Addr: endpoint})
	if err := testRedis.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "ratelimit_test: ping redis: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// The shared testRedis outlives each limiter, so tests never Close()
// the limiter; they isolate state with a unique rule prefix instead.
func newLimiter() *ratelimit.Limiter {
	return ratelimit.New(testRedis, testutil.TestLogger())
}

func uniqueRule(name string, limit int, window time.Duration) ratelimit.Rule {
	return ratelimit.Rule{
		Prefix: fmt.Sprintf("%s-%d", name, time.Now().UnixNano()),
		Limit:  limit,
		Window: window,
	}
}

// Login attempts are keyed by client IP with the same budget the
// server wires for its auth endpoints.
func TestLoginBudgetPerIP(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter()
	login := uniqueRule("auth", 10, time.Minute)

	const callerIP = "197.243.12.8"
	for i := 0; i < 10; i++ {
		res := limiter.Allow(ctx, login, callerIP)
		require.True(t, res.Allowed, "login attempt %d", i+1)
		assert.Equal(t, 10-i-1, res.Remaining)
	}

	res := limiter.Allow(ctx, login, callerIP)
	assert.False(t, res.Allowed, "11th login attempt in the window")
	assert.Zero(t, res.Remaining)
	assert.True(t, res.ResetAt.After(time.Now()))

	// A different phone on the same cell network has its own budget.
	other := limiter.Allow(ctx, login, "197.243.12.9")
	assert.True(t, other.Allowed)
}

func TestWriteBudgetPerUser(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter()
	writes := uniqueRule("write", 3, time.Minute)

	claimant := "3e9c1d5a-claimant"
	finder := "77b02f14-finder"

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(ctx, writes, claimant).Allowed)
		require.True(t, limiter.Allow(ctx, writes, finder).Allowed)
	}
	assert.False(t, limiter.Allow(ctx, writes, claimant).Allowed)
	assert.False(t, limiter.Allow(ctx, writes, finder).Allowed)
}

func TestDeniedRequestsDoNotExtendTheWindow(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter()
	rule := uniqueRule("verify", 2, 700*time.Millisecond)

	require.True(t, limiter.Allow(ctx, rule, "claimant").Allowed)
	require.True(t, limiter.Allow(ctx, rule, "claimant").Allowed)

	// Hammering while throttled must not push the reset out.
	for i := 0; i < 4; i++ {
		assert.False(t, limiter.Allow(ctx, rule, "claimant").Allowed)
	}

	time.Sleep(800 * time.Millisecond)
	assert.True(t, limiter.Allow(ctx, rule, "claimant").Allowed,
		"budget returns once the allowed requests age out")
}

func TestAuthAndWriteBudgetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter()
	login := uniqueRule("auth", 2, time.Minute)
	writes := uniqueRule("write", 5, time.Minute)

	limiter.Allow(ctx, login, "caller")
	limiter.Allow(ctx, login, "caller")
	assert.False(t, limiter.Allow(ctx, login, "caller").Allowed)

	// Exhausted logins leave item publication untouched.
	res := limiter.Allow(ctx, writes, "caller")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestNoopWithoutRedis(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(nil, testutil.TestLogger())
	rule := ratelimit.Rule{Prefix: "noop", Limit: 1, Window: time.Minute}

	for i := 0; i < 50; i++ {
		res := limiter.Allow(ctx, rule, "anyone")
		require.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining)
	}
}

func TestMiddlewareThrottles(t *testing.T) {
	limiter := newLimiter()
	rule := uniqueRule("claim", 2, time.Minute)

	var served atomic.Int64
	byUser := func(r *http.Request) string { return r.Header.Get("X-Test-User") }
	handler := ratelimit.Middleware(limiter, rule, byUser)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			served.Add(1)
			w.WriteHeader(http.StatusCreated)
		}))

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", nil)
		req.Header.Set("X-Test-User", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do("claimant-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	do("claimant-1")
	rec = do("claimant-1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t,
		`{"success":false,"message":"Too many requests, slow down"}`,
		rec.Body.String())
	assert.Equal(t, int64(2), served.Load(), "throttled request never reaches the handler")

	// Another user is unaffected.
	assert.Equal(t, http.StatusCreated, do("claimant-2").Code)
}

// An empty key means the caller is exempt (the server uses this for
// admins), and a nil limiter means limiting is not configured at all.
func TestMiddlewarePassThroughs(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("exempt key", func(t *testing.T) {
		limiter := newLimiter()
		rule := uniqueRule("admin", 1, time.Minute)
		handler := ratelimit.Middleware(limiter, rule, func(*http.Request) string { return "" })(ok)

		for i := 0; i < 5; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/cooperatives", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("nil limiter", func(t *testing.T) {
		handler := ratelimit.Middleware(nil, ratelimit.Rule{Prefix: "x", Limit: 1, Window: time.Minute}, ratelimit.IPKeyFunc)(ok)
		for i := 0; i < 5; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lost-items", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "105.178.44.20:39812"
	assert.Equal(t, "105.178.44.20", ratelimit.IPKeyFunc(req))

	// Forwarding headers are spoofable and must be ignored.
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "105.178.44.20", ratelimit.IPKeyFunc(req))
}
