package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coverdesk/workflow-service/internal/domain"
)

type departmentStore Store

func (s *departmentStore) Create(ctx context.Context, dept *domain.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept.ID = uuid.NewString()
	dept.CreatedAt = s.now()
	dept.UpdatedAt = dept.CreatedAt
	stored := *dept
	s.departments[dept.ID] = &stored
	return nil
}

func (s *departmentStore) Update(ctx context.Context, dept *domain.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	dept.UpdatedAt = s.now()
	stored := *dept
	s.departments[dept.ID] = &stored
	return nil
}

func (s *departmentStore) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dept, ok := s.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *dept
	return &copied, nil
}

func (s *departmentStore) GetByCode(ctx context.Context, code string) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dept := range s.departments {
		if dept.Code == code {
			copied := *dept
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *departmentStore) List(ctx context.Context, activeOnly bool) ([]domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Department
	for _, dept := range s.departments {
		if activeOnly && !dept.IsActive {
			continue
		}
		result = append(result, *dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type workclassStore Store

func (s *workclassStore) Create(ctx context.Context, wc *domain.WorkClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wc.ID = uuid.NewString()
	wc.CreatedAt = s.now()
	wc.UpdatedAt = wc.CreatedAt
	if wc.Permissions == nil {
		wc.Permissions = map[string]bool{}
	}
	stored := cloneWorkClass(wc)
	s.workclasses[wc.ID] = &stored
	return nil
}

func (s *workclassStore) Update(ctx context.Context, wc *domain.WorkClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workclasses[wc.ID]; !ok {
		return pgx.ErrNoRows
	}
	wc.UpdatedAt = s.now()
	stored := cloneWorkClass(wc)
	s.workclasses[wc.ID] = &stored
	return nil
}

func (s *workclassStore) GetByID(ctx context.Context, id string) (*domain.WorkClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wc, ok := s.workclasses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneWorkClass(wc)
	return &copied, nil
}

func (s *workclassStore) GetByCode(ctx context.Context, code string) (*domain.WorkClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wc := range s.workclasses {
		if wc.Code == code {
			copied := cloneWorkClass(wc)
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *workclassStore) List(ctx context.Context, activeOnly bool) ([]domain.WorkClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.WorkClass
	for _, wc := range s.workclasses {
		if activeOnly && !wc.IsActive {
			continue
		}
		result = append(result, cloneWorkClass(wc))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *workclassStore) ListByAgent(ctx context.Context, agentID string) ([]domain.WorkClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*Store)(s).workclassesForAgentLocked(agentID), nil
}

func (s *Store) workclassesForAgentLocked(agentID string) []domain.WorkClass {
	var result []domain.WorkClass
	for _, wcID := range s.agentWorkclasses[agentID] {
		if wc, ok := s.workclasses[wcID]; ok {
			result = append(result, cloneWorkClass(wc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result
}

func cloneWorkClass(wc *domain.WorkClass) domain.WorkClass {
	copied := *wc
	if wc.Permissions != nil {
		copied.Permissions = make(map[string]bool, len(wc.Permissions))
		for k, v := range wc.Permissions {
			copied.Permissions[k] = v
		}
	}
	return copied
}
