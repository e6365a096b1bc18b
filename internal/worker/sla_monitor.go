package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/coverdesk/workflow-service/internal/config"
	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/observability"
	"github.com/coverdesk/workflow-service/internal/service"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// SLAMonitor periodically scans for tickets past their deadline, publishes a
// single sla_breached event per ticket and optionally escalates overdue work
// still below the top workclass level. The scan itself lives outside the
// ticket lifecycle: tickets never self-inspect their deadline.
type SLAMonitor struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
	dispatcher events.Dispatcher
	redis      *redis.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.SchedulerConfig

	cron *cron.Cron

	// Fallback dedupe when redis is unreachable. Keys are ticket ids;
	// process restarts may re-announce a breach, which consumers tolerate.
	mu     sync.Mutex
	marked map[string]struct{}
}

// NewSLAMonitor builds the monitor. The redis client may be nil.
func NewSLAMonitor(tickets *service.TicketService, assignment *service.AssignmentService, dispatcher events.Dispatcher, redisClient *redis.Client, logger *zap.Logger, metrics *observability.Metrics, cfg config.SchedulerConfig) *SLAMonitor {
	return &SLAMonitor{
		tickets:    tickets,
		assignment: assignment,
		dispatcher: dispatcher,
		redis:      redisClient,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		marked:     make(map[string]struct{}),
	}
}

// Start schedules the scan and returns immediately.
func (m *SLAMonitor) Start() error {
	if !m.cfg.Enabled {
		m.logger.Info("sla monitor disabled")
		return nil
	}
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.cfg.SLAScanSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		m.Scan(ctx, time.Now())
	}); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("sla monitor started", zap.String("spec", m.cfg.SLAScanSpec))
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (m *SLAMonitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Scan runs one overdue sweep. Exported so tests and an admin trigger can
// drive it without the schedule.
func (m *SLAMonitor) Scan(ctx context.Context, now time.Time) {
	overdue, err := m.tickets.Overdue(ctx, now)
	if err != nil {
		m.logger.Error("overdue scan failed", zap.Error(err))
		return
	}
	for i := range overdue {
		ticket := &overdue[i]
		first, err := m.markBreach(ctx, ticket.ID)
		if err != nil {
			m.logger.Warn("breach dedupe check failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		m.logger.Warn("sla breached",
			zap.String("ticket_id", ticket.ID),
			zap.String("reference", ticket.Reference),
			zap.Time("due_at", ticket.SLADueAt))
		if m.metrics != nil {
			m.metrics.RecordSLABreach()
		}
		if m.dispatcher != nil {
			_ = m.dispatcher.Publish(ctx, events.Event{
				ID:        uuid.NewString(),
				Type:      events.EventSLABreached,
				TicketID:  ticket.ID,
				Timestamp: now,
				Payload: events.SLABreachedPayload{
					Reference: ticket.Reference,
					Priority:  ticket.Priority,
					DueAt:     ticket.SLADueAt,
					Status:    ticket.Status,
				},
			})
		}

		if m.cfg.EscalateOnBreach && ticket.RequiredLevel < domain.MaxWorkClassLevel {
			if _, err := m.assignment.Escalate(ctx, ticket.ID, "sla deadline breached", nil); err != nil {
				if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
					m.logger.Warn("breach escalation failed",
						zap.String("ticket_id", ticket.ID), zap.Error(err))
				}
			}
		}
	}
}

// markBreach records the breach mark; the boolean reports whether this scan
// is the first to see it.
func (m *SLAMonitor) markBreach(ctx context.Context, ticketID string) (bool, error) {
	if m.redis != nil {
		ttl := time.Duration(m.cfg.BreachMarkTTLHours) * time.Hour
		if ttl <= 0 {
			ttl = 72 * time.Hour
		}
		ok, err := m.redis.SetNX(ctx, "sla:breached:"+ticketID, 1, ttl).Result()
		if err == nil {
			return ok, nil
		}
		m.logger.Warn("redis breach mark failed, using in-process fallback", zap.Error(err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.marked[ticketID]; seen {
		return false, nil
	}
	m.marked[ticketID] = struct{}{}
	return true, nil
}
