package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-gateway/metrics"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"go.uber.org/zap"
)

// Alerter is notified when the event pipeline degrades: repeated insert
// failures or sustained drops. Wired to paging in production, a fake in
// tests.
type Alerter interface {
	Alert(reason string, count int)
}

// AlerterFunc adapts a plain function to the Alerter interface.
type AlerterFunc func(reason string, count int)

// Alert implements Alerter.
func (f AlerterFunc) Alert(reason string, count int) { f(reason, count) }

// Service persists security events asynchronously. Record never blocks the
// request path: events queue onto a buffered channel and a worker pool
// drains it. When the buffer is full the event is dropped and counted —
// losing an audit row is preferable to stalling authentication.
type Service struct {
	events      repositories.SecurityEventRepository
	alerter     Alerter
	logger      *zap.Logger
	metrics     *metrics.Metrics
	eventChan   chan *models.SecurityEvent
	workerCount int
	bufferSize  int

	dropped       atomic.Uint64
	consecFails   atomic.Uint32
	failThreshold uint32

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// Config holds configuration for the audit service.
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers

	// FailureAlertThreshold is the number of consecutive insert failures
	// before the alerter fires. Zero means the default.
	FailureAlertThreshold int

	// Metrics receives the dropped-event counter. Optional; nil disables
	// metric recording.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:            10000,
		WorkerCount:           4,
		FailureAlertThreshold: 10,
	}
}

// NewService creates a new audit service.
func NewService(events repositories.SecurityEventRepository, alerter Alerter, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.FailureAlertThreshold <= 0 {
		config.FailureAlertThreshold = DefaultConfig().FailureAlertThreshold
	}

	return &Service{
		events:        events,
		alerter:       alerter,
		logger:        logger,
		metrics:       config.Metrics,
		eventChan:     make(chan *models.SecurityEvent, config.BufferSize),
		workerCount:   config.WorkerCount,
		bufferSize:    config.BufferSize,
		failThreshold: uint32(config.FailureAlertThreshold),
	}
}

// Start starts the background workers.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending events and stops the workers, waiting up to timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues a security event without blocking. A full buffer drops the
// event; the request that triggered it proceeds either way.
func (s *Service) Record(event *models.SecurityEvent) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.logger.Warn("audit event before service start, dropping",
			zap.String("event_type", string(event.EventType)))
		return
	}
	s.mu.Unlock()

	select {
	case s.eventChan <- event:
	default:
		dropped := s.dropped.Add(1)
		s.metrics.AuditDropped()
		s.logger.Warn("audit event buffer full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.Uint64("total_dropped", dropped))
		if s.alerter != nil {
			s.alerter.Alert("audit buffer full", int(dropped))
		}
	}
}

// RecordRejection builds and queues the event for a security-relevant
// rejection. userID and tenantID may be nil when the request never resolved
// an identity.
func (s *Service) RecordRejection(eventType models.SecurityEventType, userID, tenantID *uuid.UUID, ipAddress, userAgent string, details interface{}) {
	event := models.NewSecurityEvent(eventType).WithRequest(ipAddress, userAgent)
	if userID != nil {
		event.WithUser(*userID)
	}
	if tenantID != nil {
		event.WithTenant(*tenantID)
	}
	if details != nil {
		event.WithDetails(details)
	}
	s.Record(event)
}

// Dropped reports how many events were lost to a full buffer.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Stats represents audit service statistics.
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Dropped       uint64
	Started       bool
}

// GetStats returns statistics about the audit service.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped.Load(),
		Started:       s.started,
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for event := range s.eventChan {
		if err := s.persist(event); err != nil {
			fails := s.consecFails.Add(1)
			s.logger.Error("failed to persist security event",
				zap.Int("worker_id", id),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
			if fails >= s.failThreshold && s.alerter != nil {
				s.alerter.Alert("audit inserts failing", int(fails))
				s.consecFails.Store(0)
			}
			continue
		}
		s.consecFails.Store(0)
	}
}

func (s *Service) persist(event *models.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.events.Insert(ctx, event)
}
