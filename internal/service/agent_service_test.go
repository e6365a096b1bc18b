package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/config"
	"github.com/coverdesk/workflow-service/internal/domain"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

func newDirectoryService(f *fixture) *AgentService {
	cfg := config.Config{Auth: config.AuthConfig{BcryptCost: 4}}
	return NewAgentService(cfg, DirectoryDependencies{
		DepartmentRepo: f.store.Departments(),
		WorkClassRepo:  f.store.WorkClasses(),
		AgentRepo:      f.store.Agents(),
	})
}

func supervisorActor() *domain.AgentProfile {
	return &domain.AgentProfile{
		ID:          "supervisor-actor",
		WorkClasses: []domain.WorkClass{{Level: domain.LevelSupervisor}},
		Active:      true,
	}
}

func juniorActor() *domain.AgentProfile {
	return &domain.AgentProfile{
		ID:          "junior-actor",
		WorkClasses: []domain.WorkClass{{Level: domain.LevelJuniorAgent}},
		Active:      true,
	}
}

func TestDirectoryMutationsRequireAuthority(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()

	_, err := svc.CreateDepartment(ctx, juniorActor(), "CLAIMS", "Claims", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	_, err = svc.CreateDepartment(ctx, nil, "CLAIMS", "Claims", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	// The manage_agents flag substitutes for supervisor level.
	manager := &domain.AgentProfile{
		ID: "manager-actor",
		WorkClasses: []domain.WorkClass{{
			Level:       domain.LevelAgent,
			Permissions: map[string]bool{PermissionManageAgents: true},
		}},
		Active: true,
	}
	dept, err := svc.CreateDepartment(ctx, manager, "claims", "Claims", "claims handling")
	require.NoError(t, err)
	assert.Equal(t, "CLAIMS", dept.Code, "codes are stored uppercase")
	assert.True(t, dept.IsActive)
}

func TestCreateWorkClassValidation(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()
	actor := supervisorActor()

	_, err := svc.CreateWorkClass(ctx, actor, CreateWorkClassInput{
		Code: "SR", Name: "Senior", Level: 6,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = svc.CreateWorkClass(ctx, actor, CreateWorkClassInput{
		Code: "SR", Name: "Senior", Level: 4,
		MonetaryLimit: decimal.NewFromInt(-1),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	missing := "no-such-department"
	_, err = svc.CreateWorkClass(ctx, actor, CreateWorkClassInput{
		Code: "SR", Name: "Senior", Level: 4, DepartmentID: &missing,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	wc, err := svc.CreateWorkClass(ctx, actor, CreateWorkClassInput{
		Code: "sr", Name: "Senior", Level: 4,
		MonetaryLimit: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	assert.Equal(t, "SR", wc.Code)
	assert.True(t, wc.IsActive)
}

func TestCreateAgentOnboarding(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()
	actor := supervisorActor()
	wc := f.addWorkClass(t, 3, 0)

	_, err := svc.CreateAgent(ctx, actor, CreateAgentInput{
		Name: "Dana", Email: "dana@example.com", Password: "short", DailyCapacity: 5,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	agent, err := svc.CreateAgent(ctx, actor, CreateAgentInput{
		Name:          "Dana",
		Email:         "dana@example.com",
		Password:      "long-enough-password",
		WorkClassIDs:  []string{wc.ID},
		DailyCapacity: 5,
	})
	require.NoError(t, err)
	assert.True(t, agent.Active)
	assert.True(t, agent.IsAvailable)
	assert.Equal(t, domain.ShiftFlexible, agent.Shift)
	require.NotNil(t, agent.PrimaryWorkClassID)
	assert.Equal(t, wc.ID, *agent.PrimaryWorkClassID)
	require.Len(t, agent.WorkClasses, 1)
	assert.NoError(t, auth.ComparePassword(agent.PasswordHash, "long-enough-password"))

	_, err = svc.CreateAgent(ctx, actor, CreateAgentInput{
		Name: "Dana Clone", Email: "dana@example.com",
		Password: "long-enough-password", DailyCapacity: 5,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestSetAvailabilitySelfService(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()
	wc := f.addWorkClass(t, 2, 0)
	agent := f.addAgent(t, "self", 5, wc.ID)

	self, err := f.store.Agents().GetByID(ctx, agent.ID)
	require.NoError(t, err)

	updated, err := svc.SetAvailability(ctx, self, agent.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable)

	// Another junior agent cannot flip someone else's flag.
	_, err = svc.SetAvailability(ctx, juniorActor(), agent.ID, true)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	updated, err = svc.SetAvailability(ctx, supervisorActor(), agent.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsAvailable)
}

func TestDeactivateRemovesFromRoster(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()
	wc := f.addWorkClass(t, 3, 0)
	agent := f.addAgent(t, "leaver", 5, wc.ID)

	deactivated, err := svc.Deactivate(ctx, supervisorActor(), agent.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)
	assert.False(t, deactivated.IsAvailable)

	// A deactivated agent is invisible to the assignment engine.
	ticket := f.addTicket(t, nil)
	_, err = f.assignment.AutoAssign(ctx, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleAgent))
}

func TestSetWorkClassesValidatesMembers(t *testing.T) {
	f := newFixture(t)
	svc := newDirectoryService(f)
	ctx := context.Background()
	first := f.addWorkClass(t, 2, 0)
	second := f.addWorkClass(t, 4, 0)
	agent := f.addAgent(t, "promotee", 5, first.ID)

	_, err := svc.SetWorkClasses(ctx, supervisorActor(), agent.ID, []string{first.ID, "bogus"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	updated, err := svc.SetWorkClasses(ctx, supervisorActor(), agent.ID, []string{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.MaxLevel())
}
