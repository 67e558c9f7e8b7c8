package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/logger"
)

const tokenIssuer = "bikerental"

// NewAdminToken signs an HS256 admin token for subject valid for ttl.
func NewAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("empty admin token secret")
	}

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return signed, errors.Wrap(err, "failed to sign admin token")
}

// parseAdminToken validates signature, algorithm, issuer and expiry.
func parseAdminToken(secret, raw string, now time.Time) (*jwt.RegisteredClaims, error) {
	claims := new(jwt.RegisteredClaims)
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid admin token")
	}
	return claims, nil
}

// requireAdmin guards admin routes with a bearer token when a secret is configured.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	if a.cfg.AdminJWTSecret == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims, err := parseAdminToken(a.cfg.AdminJWTSecret, strings.TrimSpace(raw), a.opts.Now())
		if err != nil {
			logger.FromContextWithErr(r.Context(), err).Warn("Admin request rejected")
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(logger.With(r.Context(), "admin", claims.Subject)))
	})
}
