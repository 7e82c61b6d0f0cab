package webhook

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signCalendarToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseCalendarToken(t *testing.T) {
	orgID := uuid.New()
	token := signCalendarToken(t, "bridge-secret", jwt.MapClaims{
		"org_id": orgID.String(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	got, err := parseCalendarToken(token, "bridge-secret")
	if err != nil {
		t.Fatalf("parseCalendarToken: %v", err)
	}
	if got != orgID {
		t.Errorf("expected org %s, got %s", orgID, got)
	}
}

func TestParseCalendarTokenWrongSecret(t *testing.T) {
	token := signCalendarToken(t, "other-secret", jwt.MapClaims{"org_id": uuid.New().String()})

	if _, err := parseCalendarToken(token, "bridge-secret"); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestParseCalendarTokenMissingOrg(t *testing.T) {
	token := signCalendarToken(t, "bridge-secret", jwt.MapClaims{"sub": "calendar-bridge"})

	if _, err := parseCalendarToken(token, "bridge-secret"); err == nil {
		t.Fatalf("expected missing org_id rejection")
	}
}

func TestParseCalendarTokenExpired(t *testing.T) {
	token := signCalendarToken(t, "bridge-secret", jwt.MapClaims{
		"org_id": uuid.New().String(),
		"exp":    time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := parseCalendarToken(token, "bridge-secret"); err == nil {
		t.Fatalf("expected expired token rejection")
	}
}
