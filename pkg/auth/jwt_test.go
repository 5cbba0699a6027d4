package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/common/models"
)

func TestIssueAndValidateToken(t *testing.T) {
	mgr, err := NewJWTManager("0123456789abcdef0123456789abcdef", "labworks", 2*time.Hour)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	user := models.User{ID: uuid.New()}
	token, err := mgr.IssueToken(user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	subject, err := claims.SubjectID()
	if err != nil {
		t.Fatalf("failed to parse subject: %v", err)
	}
	if subject != user.ID {
		t.Fatalf("expected subject %s, got %s", user.ID, subject)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	mgr, _ := NewJWTManager("0123456789abcdef0123456789abcdef", "labworks", time.Hour)
	other, _ := NewJWTManager("fedcba9876543210fedcba9876543210", "labworks", time.Hour)

	token, err := other.IssueToken(models.User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	if _, err := mgr.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	if _, err := mgr.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestValidateTokenExpiry(t *testing.T) {
	mgr, _ := NewJWTManager("0123456789abcdef0123456789abcdef", "labworks", time.Hour)

	issued := time.Now()
	mgr.nowFunc = func() time.Time { return issued }
	token, err := mgr.IssueToken(models.User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	mgr.nowFunc = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := mgr.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	issuerA, _ := NewJWTManager("0123456789abcdef0123456789abcdef", "labworks", time.Hour)
	issuerB, _ := NewJWTManager("0123456789abcdef0123456789abcdef", "someone-else", time.Hour)

	token, err := issuerB.IssueToken(models.User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	if _, err := issuerA.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}
