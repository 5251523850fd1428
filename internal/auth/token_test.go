package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

func TestTokenRoundTripCarriesRoleAndDepartment(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	dept := "roads"
	token, exp, err := tm.GenerateToken(&domain.StaffMember{ID: "s-1", Role: domain.RoleSupervisor, Department: &dept})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.StaffID())
	assert.Equal(t, domain.RoleSupervisor, claims.Role)
	require.NotNil(t, claims.Department)
	assert.Equal(t, "roads", *claims.Department)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("a", 5).GenerateToken(&domain.StaffMember{ID: "s-1", Role: domain.RoleStaff})
	require.NoError(t, err)

	_, err = NewTokenManager("b", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken(&domain.StaffMember{ID: "s-1", Role: domain.RoleStaff})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestGenerateTokenRequiresSubject(t *testing.T) {
	_, _, err := NewTokenManager("secret", 5).GenerateToken(&domain.StaffMember{})
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter2"))
	assert.Error(t, ComparePassword(hash, "hunter3"))
}
