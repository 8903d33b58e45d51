package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(role models.UserRole) models.JWTClaims {
	return models.JWTClaims{
		UserID: "t1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clinic-identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: testSecret, Issuer: "clinic-identity"})

	claims, err := svc.ValidateToken(signToken(t, testSecret, validClaims(models.RoleTherapist)))
	require.NoError(t, err)
	assert.Equal(t, "t1", claims.UserID)
	assert.Equal(t, models.RoleTherapist, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: testSecret, Issuer: "clinic-identity"})

	expired := validClaims(models.RolePatient)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims(models.RolePatient)
	wrongIssuer.Issuer = "someone-else"

	anonymous := validClaims(models.RolePatient)
	anonymous.UserID = ""

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": signToken(t, "other-secret", validClaims(models.RoleAdmin)),
		"expired":      signToken(t, testSecret, expired),
		"wrong issuer": signToken(t, testSecret, wrongIssuer),
		"unknown role": signToken(t, testSecret, validClaims(models.UserRole("superuser"))),
		"missing user": signToken(t, testSecret, anonymous),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
