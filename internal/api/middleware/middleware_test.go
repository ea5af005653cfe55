package middleware_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mw "github.com/kiranshivaraju/analyzr/internal/api/middleware"
	"github.com/kiranshivaraju/analyzr/internal/auth"
	"github.com/kiranshivaraju/analyzr/internal/cache"
	"github.com/kiranshivaraju/analyzr/internal/ratelimit"
	"github.com/kiranshivaraju/analyzr/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Stub validator ---

type stubValidator struct {
	claims auth.Claims
	err    error
	gotTok string
}

func (s *stubValidator) Validate(_ context.Context, token string) (auth.Claims, error) {
	s.gotTok = token
	return s.claims, s.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func newLimiter(t *testing.T, max int, now func() time.Time) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ratelimit.New(cache.NewRedisCacheFromClient(client), time.Minute, max, ratelimit.WithClock(now)), mr
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	a := mw.NewAuth(&stubValidator{}, nil)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errBody(t, w)["code"])
}

func TestAuth_NonBearerScheme(t *testing.T) {
	v := &stubValidator{}
	a := mw.NewAuth(v, nil)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, v.gotTok)
}

func TestAuth_InvalidToken(t *testing.T) {
	a := mw.NewAuth(&stubValidator{err: auth.ErrInvalidToken}, nil)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer az_bogus")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", errBody(t, w)["message"])
}

func TestAuth_ExpiredToken(t *testing.T) {
	a := mw.NewAuth(&stubValidator{err: auth.ErrExpiredToken}, nil)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer az_old")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key expired", errBody(t, w)["message"])
}

func TestAuth_ValidatorFailure(t *testing.T) {
	a := mw.NewAuth(&stubValidator{err: errors.New("connection refused")}, nil)
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer az_key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := errBody(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["message"], "connection refused")
}

func TestAuth_ValidTokenSetsClaims(t *testing.T) {
	v := &stubValidator{claims: auth.Claims{SubjectID: "key-1", OrgID: "org-1"}}
	a := mw.NewAuth(v, nil)

	var got auth.Claims
	var ok bool
	handler := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = mw.GetClaims(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "bearer  az_secret ")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "az_secret", v.gotTok)
	require.True(t, ok)
	assert.Equal(t, "org-1", got.OrgID)
	assert.Equal(t, "key-1", got.SubjectID)
}

func TestRequireRole(t *testing.T) {
	a := mw.NewAuth(&stubValidator{}, nil)
	handler := a.RequireRole(auth.RoleAdmin)(okHandler())

	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"no claims", nil, http.StatusForbidden},
		{"missing role", &auth.Claims{OrgID: "org-1", Roles: []string{"read"}}, http.StatusForbidden},
		{"admin", &auth.Claims{OrgID: "org-1", Roles: []string{"read", auth.RoleAdmin}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/keys", nil)
			if tt.claims != nil {
				req = req.WithContext(mw.SetClaims(req.Context(), *tt.claims))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
			}
		})
	}
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_HeadersAndRejection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter, _ := newLimiter(t, 3, func() time.Time { return now })
	metrics := telemetry.New()
	handler := mw.NewRateLimit(limiter, metrics).Limit(okHandler())

	for _, want := range []string{"2", "1", "0"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, strconv.FormatInt(now.Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
		now = now.Add(time.Second)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:6666"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	body := errBody(t, w)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, "Too many requests", body["message"])
}

func TestRateLimit_ResetRoundsUp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).Add(400 * time.Millisecond)
	limiter, _ := newLimiter(t, 3, func() time.Time { return now })
	handler := mw.NewRateLimit(limiter, nil).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1700000001", w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_IdentitiesIsolated(t *testing.T) {
	limiter, _ := newLimiter(t, 1, time.Now)
	handler := mw.NewRateLimit(limiter, nil).Limit(okHandler())

	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, ip)
	}
}

func TestRateLimit_FailsOpenWhenStoreDown(t *testing.T) {
	limiter, mr := newLimiter(t, 1, time.Now)
	mr.Close()
	handler := mw.NewRateLimit(limiter, telemetry.New()).Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name    string
		claims  *auth.Claims
		headers map[string]string
		remote  string
		want    string
	}{
		{"claims win", &auth.Claims{SubjectID: "key-9"}, map[string]string{"X-Forwarded-For": "1.1.1.1"}, "2.2.2.2:80", "key-9"},
		{"first forwarded hop", nil, map[string]string{"X-Forwarded-For": " 1.1.1.1 , 3.3.3.3"}, "2.2.2.2:80", "1.1.1.1"},
		{"real ip", nil, map[string]string{"X-Real-IP": "4.4.4.4"}, "2.2.2.2:80", "4.4.4.4"},
		{"peer address", nil, nil, "2.2.2.2:80", "2.2.2.2"},
		{"peer without port", nil, nil, "2.2.2.2", "2.2.2.2"},
		{"unknown", nil, nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.claims != nil {
				req = req.WithContext(mw.SetClaims(req.Context(), *tt.claims))
			}
			assert.Equal(t, tt.want, mw.Identity(req))
		})
	}
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLogger_PassesHijack(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		_, _, err := hj.Hijack()
		require.NoError(t, err)
	}))

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))

	assert.True(t, rec.hijacked)
}

func TestLogger_HijackUnsupported(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _, err := w.(http.Hijacker).Hijack()
		assert.Error(t, err)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))
}
