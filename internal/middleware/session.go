package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"trafficsentinel/internal/config"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "ts_session"

const issuer = "trafficsentinel"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Sessions checks the shared password and issues signed session tokens.
// With no password configured authentication is disabled.
type Sessions struct {
	enabled      bool
	passwordHash []byte
	secretKey    []byte
	ttl          time.Duration
}

func NewSessions(cfg *config.Config) (*Sessions, error) {
	s := &Sessions{
		enabled: cfg.AuthEnabled(),
		ttl:     cfg.SessionTTL,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if !s.enabled {
		return s, nil
	}

	// Hasło może być już hashem bcrypt
	if strings.HasPrefix(cfg.Password, "$2") && len(cfg.Password) == 60 {
		s.passwordHash = []byte(cfg.Password)
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.passwordHash = hash
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// Losowy sekret - sesje wygasają po restarcie
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(randomBytes)
	}
	s.secretKey = []byte(secret)
	return s, nil
}

// Enabled reports whether requests must carry a session.
func (s *Sessions) Enabled() bool {
	return s.enabled
}

// Login checks the password and returns a session cookie.
func (s *Sessions) Login(password string) (*http.Cookie, error) {
	if !s.enabled {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Validate checks a session token.
func (s *Sessions) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// LogoutCookie returns a cookie that removes the session.
func LogoutCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
}
