package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
)

type agentStore Store

func (s *agentStore) Create(ctx context.Context, agent *domain.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent.ID = uuid.NewString()
	agent.CreatedAt = s.now()
	agent.UpdatedAt = agent.CreatedAt
	stored := cloneAgent(agent)
	stored.WorkClasses = nil
	s.agents[agent.ID] = &stored
	return nil
}

func (s *agentStore) Update(ctx context.Context, agent *domain.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.agents[agent.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	agent.UpdatedAt = s.now()
	stored := cloneAgent(agent)
	stored.WorkClasses = nil
	// current_load is owned by the CAS operations, not full-row updates.
	stored.CurrentLoad = existing.CurrentLoad
	s.agents[agent.ID] = &stored
	return nil
}

func (s *agentStore) GetByID(ctx context.Context, id string) (*domain.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneAgent(agent)
	copied.WorkClasses = (*Store)(s).workclassesForAgentLocked(id)
	return &copied, nil
}

func (s *agentStore) GetByEmail(ctx context.Context, email string) (*domain.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, agent := range s.agents {
		if agent.Email == email {
			copied := cloneAgent(agent)
			copied.WorkClasses = (*Store)(s).workclassesForAgentLocked(id)
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *agentStore) List(ctx context.Context, filter repository.AgentFilter) ([]domain.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.AgentProfile
	for id, agent := range s.agents {
		if filter.DepartmentID != nil &&
			(agent.DepartmentID == nil || *agent.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && agent.Active != *filter.Active {
			continue
		}
		if filter.Available != nil && agent.IsAvailable != *filter.Available {
			continue
		}
		copied := cloneAgent(agent)
		copied.WorkClasses = (*Store)(s).workclassesForAgentLocked(id)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	result = paginateAgents(result, filter.Limit, filter.Offset)
	return result, nil
}

func (s *agentStore) SetWorkClasses(ctx context.Context, agentID string, workclassIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return pgx.ErrNoRows
	}
	ids := make([]string, len(workclassIDs))
	copy(ids, workclassIDs)
	s.agentWorkclasses[agentID] = ids
	return nil
}

func (s *agentStore) SetAvailability(ctx context.Context, agentID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return pgx.ErrNoRows
	}
	agent.IsAvailable = available
	agent.UpdatedAt = s.now()
	return nil
}

func (s *agentStore) IncrementLoad(ctx context.Context, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return false, nil
	}
	if !agent.Active || !agent.IsAvailable || agent.CurrentLoad >= agent.DailyCapacity {
		return false, nil
	}
	agent.CurrentLoad++
	agent.UpdatedAt = s.now()
	return true, nil
}

func (s *agentStore) DecrementLoad(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil
	}
	if agent.CurrentLoad > 0 {
		agent.CurrentLoad--
		agent.UpdatedAt = s.now()
	}
	return nil
}

func cloneAgent(agent *domain.AgentProfile) domain.AgentProfile {
	copied := *agent
	if agent.WorkClasses != nil {
		copied.WorkClasses = make([]domain.WorkClass, len(agent.WorkClasses))
		copy(copied.WorkClasses, agent.WorkClasses)
	}
	return copied
}

func paginateAgents(agents []domain.AgentProfile, limit, offset int) []domain.AgentProfile {
	if offset > 0 {
		if offset >= len(agents) {
			return nil
		}
		agents = agents[offset:]
	}
	if limit > 0 && limit < len(agents) {
		agents = agents[:limit]
	}
	return agents
}
