// Package auth verifies the short-lived request tokens issued by the document host.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JakeFAU/pdfworker/internal/report"
)

// Error is a verification failure. Message is the body sent to the caller.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap classifies every verification failure as report.ErrUnauthorized.
func (e *Error) Unwrap() error { return report.ErrUnauthorized }

// Verification failures.
var (
	ErrNoToken        = &Error{Message: "No token provided"}
	ErrInvalidPayload = &Error{Message: "Invalid token payload"}
	ErrExpired        = &Error{Message: "Token expired"}
	ErrInvalidToken   = &Error{Message: "Invalid token"}
)

// Claims is the payload of a request token.
type Claims struct {
	TaskID    string
	UserID    string
	Timestamp time.Time
}

// Verifier checks bearer tokens against a shared HS256 secret.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	clock  report.Clock
}

// NewVerifier returns a Verifier. Tokens older than maxAge are rejected.
func NewVerifier(secret string, maxAge time.Duration, clock report.Clock) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if maxAge <= 0 {
		return nil, errors.New("token max age must be positive")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	return &Verifier{secret: []byte(secret), maxAge: maxAge, clock: clock}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	_, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// Verify checks the Authorization header value for a request on taskID/userID.
func (v *Verifier) Verify(authorization, taskID, userID string) (Claims, error) {
	raw := BearerToken(authorization)
	if raw == "" {
		return Claims{}, ErrNoToken
	}
	claims, err := v.parse(raw)
	if err != nil {
		return Claims{}, err
	}
	if claims.TaskID != taskID || claims.UserID != userID {
		return Claims{}, ErrInvalidPayload
	}
	if v.clock.Now().Sub(claims.Timestamp) > v.maxAge {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func (v *Verifier) parse(raw string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, mapClaims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithJSONNumber(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	taskID, okTask := claimString(mapClaims["task_id"])
	userID, okUser := claimString(mapClaims["user_id"])
	ts, okTS := mapClaims["timestamp"].(json.Number)
	if !okTask || !okUser || !okTS {
		return Claims{}, ErrInvalidPayload
	}
	ms, err := ts.Int64()
	if err != nil {
		f, ferr := ts.Float64()
		if ferr != nil {
			return Claims{}, ErrInvalidPayload
		}
		ms = int64(f)
	}
	return Claims{TaskID: taskID, UserID: userID, Timestamp: time.UnixMilli(ms)}, nil
}

// claimString accepts string or numeric claim values.
func claimString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

// Issue signs a token for taskID/userID stamped at at. The document host
// normally does this; the CLI and tests use it too.
func Issue(secret, taskID, userID string, at time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"task_id":   taskID,
		"user_id":   userID,
		"timestamp": at.UnixMilli(),
	})
	return token.SignedString([]byte(secret))
}
