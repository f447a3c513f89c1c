package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func newSessions(t *testing.T, password string) *Sessions {
	t.Helper()
	s, err := NewSessions(&config.Config{Password: password, JWTSecret: "test-secret", SessionTTL: time.Hour})
	require.NoError(t, err)
	return s
}

func TestSessions_Disabled(t *testing.T) {
	s := newSessions(t, "")
	assert.False(t, s.Enabled())

	_, err := s.Login("")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	rec := httptest.NewRecorder()
	AuthMiddleware(s)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessions_LoginAndValidate(t *testing.T) {
	s := newSessions(t, "secret")
	require.True(t, s.Enabled())

	_, err := s.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	cookie, err := s.Login("secret")
	require.NoError(t, err)
	assert.Equal(t, SessionCookie, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.NoError(t, s.Validate(cookie.Value))

	assert.ErrorIs(t, s.Validate("garbage"), ErrInvalidToken)

	other := newSessions(t, "secret")
	other.secretKey = []byte("another-secret")
	assert.ErrorIs(t, other.Validate(cookie.Value), ErrInvalidToken)
}

func TestSessions_AcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	s := newSessions(t, string(hash))
	_, err = s.Login("hunter2")
	assert.NoError(t, err)
}

func TestSessions_ExpiredToken(t *testing.T) {
	s := newSessions(t, "secret")

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		Issuer:    issuer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Validate(token), ErrExpiredToken)
}

func TestSessions_RandomSecretWhenUnset(t *testing.T) {
	s, err := NewSessions(&config.Config{Password: "secret"})
	require.NoError(t, err)
	assert.Len(t, s.secretKey, 64)
	assert.Equal(t, 24*time.Hour, s.ttl)
}

func TestAuthMiddleware(t *testing.T) {
	s := newSessions(t, "secret")
	cookie, err := s.Login("secret")
	require.NoError(t, err)

	handler := AuthMiddleware(s)(okHandler)

	tests := []struct {
		name     string
		path     string
		cookie   *http.Cookie
		xhr      bool
		want     int
		location string
	}{
		{"login page is public", "/login", nil, false, http.StatusOK, ""},
		{"assets are public", "/assets/app.css", nil, false, http.StatusOK, ""},
		{"metrics are public", "/metrics", nil, false, http.StatusOK, ""},
		{"page redirects", "/history", nil, false, http.StatusSeeOther, "/login"},
		{"xhr gets 401", "/history/clear", nil, true, http.StatusUnauthorized, ""},
		{"api gets 401", "/api/stats", nil, false, http.StatusUnauthorized, ""},
		{"bad cookie redirects", "/", &http.Cookie{Name: SessionCookie, Value: "nope"}, false, http.StatusSeeOther, "/login"},
		{"valid session", "/", cookie, false, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if tt.xhr {
				req.Header.Set("X-Requested-With", "XMLHttpRequest")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	l := NewRateLimiter(60, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)

	ok, retry := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, retry, float64(10*time.Millisecond))

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "other addresses have their own bucket")

	now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "token refills after a second")
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("10.0.0.1")
		require.True(t, ok)
	}
	assert.Zero(t, l.Visitors())
}

func TestRateLimiter_SweepsIdleVisitors(t *testing.T) {
	l := NewRateLimiter(60, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	assert.Equal(t, 2, l.Visitors())

	now = now.Add(2 * visitorIdle)
	l.Allow("10.0.0.3")
	assert.Equal(t, 1, l.Visitors())
}

func TestRateLimiter_Limit(t *testing.T) {
	l := NewRateLimiter(1, 1)
	handler := l.Limit(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/process_file", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", ClientIP(req))
}

func TestLogging_RecordsStatus(t *testing.T) {
	var status int
	handler := Logging(logger.NewDiscard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
		status = w.(*statusRecorder).status
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analysis/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, status)
}
