package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/server/config"
	"github.com/kollectcare/trialsync/internal/server/repositories/repomanager"
)

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                   "test-secret",
		AccessTokenValidityDuration: time.Minute,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewUserService(nil, repomanager.NewMemoryRepositoryManager(), testConfig())
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "s3cret", string(user.PasswordHash))

	token, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	userID, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := NewUserService(nil, repomanager.NewMemoryRepositoryManager(), testConfig())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = svc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRegister_RequiresCredentials(t *testing.T) {
	svc := NewUserService(nil, repomanager.NewMemoryRepositoryManager(), testConfig())

	_, err := svc.Register(context.Background(), "", "pw")
	assert.ErrorIs(t, err, common.ErrValidation)
}
