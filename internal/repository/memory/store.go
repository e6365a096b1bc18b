// Package memory provides a mutex-guarded in-memory implementation of the
// repository interfaces. It preserves the same compare-and-swap semantics as
// the Postgres implementation for load increments and ticket claims, so the
// engine's concurrency discipline can be exercised without a database. It
// backs tests and DSN-less runs.
package memory

import (
	"sync"
	"time"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
)

// Store holds all reference and ticket data behind a single lock. Assignment
// commits (claim + load increment) therefore serialize exactly as the
// per-agent exclusive-update discipline requires.
type Store struct {
	mu sync.Mutex

	departments      map[string]*domain.Department
	workclasses      map[string]*domain.WorkClass
	agents           map[string]*domain.AgentProfile
	agentWorkclasses map[string][]string
	tickets          map[string]*domain.Ticket
	activities       map[string][]domain.TicketActivity

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		departments:      make(map[string]*domain.Department),
		workclasses:      make(map[string]*domain.WorkClass),
		agents:           make(map[string]*domain.AgentProfile),
		agentWorkclasses: make(map[string][]string),
		tickets:          make(map[string]*domain.Ticket),
		activities:       make(map[string][]domain.TicketActivity),
		now:              time.Now,
	}
}

// Departments returns the department repository view of the store.
func (s *Store) Departments() repository.DepartmentRepository { return (*departmentStore)(s) }

// WorkClasses returns the workclass repository view of the store.
func (s *Store) WorkClasses() repository.WorkClassRepository { return (*workclassStore)(s) }

// Agents returns the agent repository view of the store.
func (s *Store) Agents() repository.AgentRepository { return (*agentStore)(s) }

// Tickets returns the ticket repository view of the store.
func (s *Store) Tickets() repository.TicketRepository { return (*ticketStore)(s) }

// Activities returns the activity repository view of the store.
func (s *Store) Activities() repository.ActivityRepository { return (*activityStore)(s) }
