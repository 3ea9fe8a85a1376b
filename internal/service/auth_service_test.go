package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/config"
)

func testAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestGenerateAndValidateToken(t *testing.T) {
	auth := testAuth()
	token, err := auth.GenerateToken("user-42", "Dr. Test", 0)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.OwnerID())
	assert.Equal(t, "Dr. Test", claims.Name)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := testAuth().GenerateToken("user-42", "", 0)
	require.NoError(t, err)

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	auth := testAuth()
	token, err := auth.GenerateToken("user-42", "", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestGenerateTokenRequiresSubject(t *testing.T) {
	_, err := testAuth().GenerateToken("", "", 0)
	assert.Error(t, err)
}
