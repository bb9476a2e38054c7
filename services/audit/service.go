package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/stockbot/internal/privacy"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log      *models.AuditLog
	Priority int // Higher priority events are processed first (for future enhancements)
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     uint64
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
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

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	// no more events will be accepted
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent logs an event asynchronously (non-blocking)
// Returns immediately, event is processed in background
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped++
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("user_id", event.Log.UserID))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking logs an event synchronously (blocking)
// Waits until event is queued or context is cancelled
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	// holding the lock keeps Stop from closing the channel under us
	defer s.mu.Unlock()

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("audit service stopped")
	}
}

// Record queues log and never fails the caller. Drops are logged.
func (s *AuditService) Record(log *models.AuditLog) {
	if err := s.LogEvent(&AuditEvent{Log: log, Priority: 1}); err != nil {
		s.logger.Debug("audit event not queued",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}

// History returns a user's audit trail, newest first
func (s *AuditService) History(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.auditRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("user_id", event.Log.UserID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Dropped       uint64
	Started       bool
}

// Convenience methods for logging common events

// LogEstimated logs a priced request that is now awaiting confirmation
func (s *AuditService) LogEstimated(userID, requestID, symbol string, est models.CostEstimate) {
	s.Record(models.NewAuditLog(userID, models.AuditActionEstimated).
		WithRequest(requestID).
		WithSymbol(symbol).
		WithEstimate(est))
}

// LogDenied logs a budget denial with its reason
func (s *AuditService) LogDenied(userID, requestID, symbol string, est models.CostEstimate, reason string, details map[string]interface{}) {
	s.Record(models.NewAuditLog(userID, models.AuditActionDenied).
		WithRequest(requestID).
		WithSymbol(symbol).
		WithEstimate(est).
		WithReason(reason).
		WithDetails(details))
}

// LogCancelled logs a pending analysis the user declined
func (s *AuditService) LogCancelled(userID string, pending models.PendingAnalysis) {
	s.Record(models.NewAuditLog(userID, models.AuditActionCancelled).
		WithRequest(pending.RequestID).
		WithSymbol(pending.Symbol).
		WithEstimate(pending.Estimate))
}

// LogExecuted logs a completed analysis with the estimate and the actual charge
func (s *AuditService) LogExecuted(userID string, pending models.PendingAnalysis, actual models.CostEstimate, latency time.Duration) {
	log := models.NewAuditLog(userID, models.AuditActionExecuted).
		WithRequest(pending.RequestID).
		WithSymbol(pending.Symbol).
		WithEstimate(pending.Estimate).
		WithActual(actual, int(latency.Milliseconds()))
	s.Record(log)
}

// LogFailed logs a completion failure. Nothing was charged.
func (s *AuditService) LogFailed(userID string, pending models.PendingAnalysis, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.Record(models.NewAuditLog(userID, models.AuditActionFailed).
		WithRequest(pending.RequestID).
		WithSymbol(pending.Symbol).
		WithEstimate(pending.Estimate).
		WithReason(reason))
}

// LogNoPending logs a confirmation-style reply with nothing to confirm
func (s *AuditService) LogNoPending(userID, reply string) {
	s.Record(models.NewAuditLog(userID, models.AuditActionNoPending).
		WithDetails(map[string]interface{}{"reply": privacy.RedactPII(reply)}))
}

// LogAccessChange logs an admin granting or revoking a user
func (s *AuditService) LogAccessChange(actorID, targetID string, granted bool) {
	action := models.AuditActionAccessRevoke
	if granted {
		action = models.AuditActionAccessGrant
	}
	s.Record(models.NewAuditLog(actorID, action).
		WithDetails(map[string]interface{}{"target_user_id": targetID}))
}

// LogAliasChange logs an admin editing the alias table
func (s *AuditService) LogAliasChange(actorID string, alias models.Alias, added bool) {
	action := models.AuditActionAliasRemoved
	if added {
		action = models.AuditActionAliasAdded
	}
	s.Record(models.NewAuditLog(actorID, action).
		WithSymbol(alias.Symbol).
		WithDetails(map[string]interface{}{"alias": alias.Name}))
}
