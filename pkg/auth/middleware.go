package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/veilcash/pullauth/pkg/contracts"
)

// Claims are the JWT claims expected on API bearer tokens. The address
// claim carries the caller's account address in hex.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"addr"`
}

// Validator validates HMAC-signed bearer tokens.
type Validator struct {
	secret []byte
}

// NewValidator creates a validator over a shared HMAC secret.
func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

// Validate parses a token string and resolves the caller it names.
func (v *Validator) Validate(tokenStr string) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return Caller{}, fmt.Errorf("invalid token")
	}
	addr, err := contracts.ParseAddress(claims.Address)
	if err != nil {
		return Caller{}, fmt.Errorf("token addr claim: %w", err)
	}
	return Caller{Address: addr, Subject: claims.Subject}, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// ErrorWriter writes an unauthorized response. The API layer supplies
// its problem-detail writer; injected to avoid an import cycle.
type ErrorWriter func(w http.ResponseWriter, detail string)

// Middleware creates bearer-token auth middleware. If validator is nil,
// all non-public requests are rejected (fail closed).
func Middleware(validator *Validator, unauthorized ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if validator == nil {
				unauthorized(w, "Authentication is not configured")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			caller, err := validator.Validate(parts[1])
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
