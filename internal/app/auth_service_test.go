package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ollamachat/internal/pkg/jwtutil"
	"ollamachat/internal/repository"
)

func newAuthService(t *testing.T) (*AuthService, *repository.UserRepository) {
	t.Helper()
	db := newTestDB(t)
	userRepo := repository.NewUserRepository(db)
	return NewAuthService(userRepo, "test-secret", time.Hour, 24*time.Hour), userRepo
}

func TestAuthRegister(t *testing.T) {
	svc, _ := newAuthService(t)

	user, err := svc.Register(RegisterInput{Name: "Alice", Email: "Alice@Example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email, "email is normalized")

	// The password is stored hashed, never plain.
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
}

func TestAuthRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterInput{Name: "", Email: "a@b.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(RegisterInput{Name: "a", Email: "  ", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(RegisterInput{Name: "a", Email: "a@b.com", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterInput{Name: "a", Email: "dup@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterInput{Name: "b", Email: "DUP@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestAuthLogin(t *testing.T) {
	svc, userRepo := newAuthService(t)

	registered, err := svc.Register(RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	result, err := svc.Login(LoginInput{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	claims, err := jwtutil.ParseToken("test-secret", result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	// The refresh token is stored on the user row.
	user, err := userRepo.GetByID(registered.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, result.RefreshToken, user.RefreshToken)
}

func TestAuthLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Login(LoginInput{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(LoginInput{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredential, "unknown email is indistinguishable from a bad password")
}

func TestAuthListUsers(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(RegisterInput{Name: "a", Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.Register(RegisterInput{Name: "b", Email: "b@example.com", Password: "pw"})
	require.NoError(t, err)

	users, err := svc.ListUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
