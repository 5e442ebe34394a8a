package apiv1

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"telegram-media-relay/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// AuthManager exchanges the static admin API key for short-lived HS256 tokens.
type AuthManager struct {
	apiKey []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthManager returns nil when apiKey is empty; the API then refuses every guarded call.
// An empty secret falls back to the API key.
func NewAuthManager(apiKey, secret string, ttl time.Duration) *AuthManager {
	if apiKey == "" {
		return nil
	}
	if secret == "" {
		secret = apiKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{apiKey: []byte(apiKey), secret: []byte(secret), ttl: ttl, now: time.Now}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// CheckKey compares in constant time.
func (a *AuthManager) CheckKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
}

func (a *AuthManager) Mint() (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   "admin",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseFromRequest reads "Authorization: Bearer <jwt>".
func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Require guards admin routes.
func (a *AuthManager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			metrics.IncAdminCommand("api", "unconfigured")
			writeError(w, http.StatusForbidden, "admin api is not configured")
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			metrics.IncAdminCommand("api", "unauthorized")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
