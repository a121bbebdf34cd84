package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func newTestValidator(t *testing.T, clock func() time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signTestToken(t *testing.T, claims SessionClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(now time.Time) SessionClaims {
	return SessionClaims{
		UserID:    testSessionUserID,
		UserEmail: testSessionUserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })

	claims, err := validator.ValidateToken(signTestToken(t, validClaims(clockNow)))
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	identity := claims.Identity()
	if identity.DisplayName != testSessionUserEmail {
		t.Fatalf("expected display name to fall back to email, got %q", identity.DisplayName)
	}
}

func TestSessionValidatorValidateTokenExpired(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })

	claims := validClaims(clockNow)
	claims.IssuedAt = jwt.NewNumericDate(clockNow.Add(-2 * time.Hour))
	claims.NotBefore = nil
	claims.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-time.Hour))

	_, err := validator.ValidateToken(signTestToken(t, claims))
	if !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsForeignIssuer(t *testing.T) {
	clockNow := time.Now()
	validator := newTestValidator(t, nil)

	claims := validClaims(clockNow)
	claims.Issuer = "someone-else"

	_, err := validator.ValidateToken(signTestToken(t, claims))
	if !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSessionValidatorValidateRequestSources(t *testing.T) {
	validator := newTestValidator(t, nil)
	signed := signTestToken(t, validClaims(time.Now()))

	byCookie := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	byCookie.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})

	byQuery := httptest.NewRequest(http.MethodGet, "/ws?access_token="+signed, http.NoBody)

	byHeader := httptest.NewRequest(http.MethodGet, "/api/chat/1", http.NoBody)
	byHeader.Header.Set("Authorization", "Bearer "+signed)

	for name, request := range map[string]*http.Request{"cookie": byCookie, "query": byQuery, "header": byHeader} {
		claims, err := validator.ValidateRequest(request)
		if err != nil {
			t.Fatalf("%s: validation failed: %v", name, err)
		}
		if claims.UserID != testSessionUserID {
			t.Fatalf("%s: unexpected user id: %s", name, claims.UserID)
		}
	}

	missing := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	if _, err := validator.ValidateRequest(missing); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
