package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services"
	"go.uber.org/zap"
)

// Config holds configuration for the audit Service
type Config struct {
	BufferSize  int // Size of the entry buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// Service records audit entries and answers trail queries. Writes go
// through a background worker pool so state transitions never block on
// the audit store; transitions that must be atomic with their audit
// entry use RecordSync inside the enclosing transaction instead.
type Service struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	entryChan   chan *models.AuditEntry
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewService creates a new audit Service instance
func NewService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize < 1 {
		config = DefaultConfig()
	}
	return &Service{
		auditRepo:   auditRepo,
		logger:      logger,
		entryChan:   make(chan *models.AuditEntry, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
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

// Stop gracefully stops the service, waiting for pending entries to
// drain up to the timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_entries", len(s.entryChan)))

	close(s.entryChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record enqueues an entry for asynchronous persistence (non-blocking).
// The entry is dropped with a warning when the buffer is full.
func (s *Service) Record(entry *models.AuditEntry) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		s.logger.Warn("audit service not started, dropping entry",
			zap.String("action", string(entry.Action)))
		return
	}

	select {
	case s.entryChan <- entry:
	default:
		s.logger.Warn("audit entry buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("entity_id", entry.EntityID.String()))
	}
}

// RecordSync persists an entry immediately on the caller's executor.
// Used inside transactions where the audit entry must commit with the
// transition it describes.
func (s *Service) RecordSync(ctx context.Context, entry *models.AuditEntry) error {
	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		return services.WrapInternal("failed to record audit entry", err)
	}
	return nil
}

// RecordTransition builds and enqueues an entry for a state transition,
// with the status change captured as a field diff.
func (s *Service) RecordTransition(entityType string, entityID uuid.UUID, action models.AuditAction, actor services.Actor, fromStatus, toStatus string) {
	entry := models.NewAuditEntry(entityType, entityID, action, actor.ID, actor.Name).
		WithChanges(map[string]models.FieldChange{
			"status": {Old: fromStatus, New: toStatus},
		})
	s.Record(entry)
}

// Get retrieves one audit entry by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error) {
	entry, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAuditEntryNotFound
		}
		return nil, services.WrapInternal("failed to get audit entry", err)
	}
	return entry, nil
}

// List retrieves audit entries matching the filter, newest first
func (s *Service) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditEntry, error) {
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	entries, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list audit entries", err)
	}
	return entries, nil
}

// History retrieves the full ordered trail for one entity, oldest first
func (s *Service) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error) {
	entries, err := s.auditRepo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, services.WrapInternal("failed to load entity history", err)
	}
	return entries, nil
}

// EntryContentDiff renders the line diff of a content field change
// recorded in an audit entry. Returns nil when the entry carries no
// change for the field.
func (s *Service) EntryContentDiff(entry *models.AuditEntry, field string) []DiffLine {
	change, ok := entry.Changes[field]
	if !ok {
		return nil
	}
	return DiffLines(change.Old, change.New)
}

// worker processes entries from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for entry := range s.entryChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.auditRepo.Insert(ctx, entry); err != nil {
			s.logger.Error("failed to persist audit entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(entry.Action)),
				zap.String("entity_id", entry.EntityID.String()))
		}
		cancel()
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}
