package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/config"
	"github.com/coverdesk/workflow-service/internal/domain"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("correct-horse", 4)
	require.NoError(t, err)
	agent := &domain.AgentProfile{
		Name:          "Casey",
		Email:         "casey@example.com",
		PasswordHash:  hash,
		DailyCapacity: 5,
		IsAvailable:   true,
		Shift:         domain.ShiftFlexible,
		Active:        true,
	}
	require.NoError(t, f.store.Agents().Create(ctx, agent))

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            4,
	}}
	svc := NewAuthService(cfg, f.store.Agents())

	loggedIn, token, expiresAt, err := svc.Login(ctx, "casey@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, loggedIn.ID)
	assert.NotEmpty(t, token)
	assert.False(t, expiresAt.IsZero())

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, claims.AgentID)

	_, _, _, err = svc.Login(ctx, "casey@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "UNAUTHORIZED"))

	_, _, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "UNAUTHORIZED"))

	stored, err := f.store.Agents().GetByID(ctx, agent.ID)
	require.NoError(t, err)
	stored.Active = false
	require.NoError(t, f.store.Agents().Update(ctx, stored))

	_, _, _, err = svc.Login(ctx, "casey@example.com", "correct-horse")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "UNAUTHORIZED"))
}
