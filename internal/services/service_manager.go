package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prepstack/attempt-service/internal/config"
	"github.com/prepstack/attempt-service/internal/events"
	"github.com/prepstack/attempt-service/internal/repositories"
	"github.com/prepstack/attempt-service/internal/validator"
)

// serviceManager wires the services together and owns their lifecycle. All
// services share one repository, one publisher, and one per-attempt lock
// registry.
type serviceManager struct {
	mu          sync.RWMutex
	initialized bool
	shutdown    bool

	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	engine    config.EngineConfig
	analytics config.AnalyticsConfig

	attemptService   AttemptService
	gradingService   GradingService
	proctorService   ProctorService
	analyticsService AnalyticsService
	seriesService    SeriesService
}

func NewServiceManager(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	publisher events.EventPublisher,
	engine config.EngineConfig,
	analytics config.AnalyticsConfig,
) ServiceManager {
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: v,
		publisher: publisher,
		engine:    engine,
		analytics: analytics,
	}
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return fmt.Errorf("service manager already initialized")
	}
	if m.shutdown {
		return fmt.Errorf("service manager has been shut down")
	}

	// Save, submit, and anti-cheat must contend on the same lock registry.
	locks := newAttemptLocks()
	reward := NewRewardNotifier(m.publisher, m.logger)

	m.gradingService = NewGradingService(m.logger)
	m.analyticsService = NewAnalyticsService(m.repo, m.logger, m.analytics)
	m.attemptService = NewAttemptService(
		m.repo, m.logger, m.validator, NewPoolSelector(nil),
		m.gradingService, m.analyticsService, reward, locks)
	m.proctorService = NewProctorService(
		m.repo, m.logger, m.validator, m.engine, m.publisher, locks)
	m.seriesService = NewSeriesService(m.repo, m.logger)

	m.initialized = true
	m.logger.Info("service manager initialized")
	return nil
}

func (m *serviceManager) Attempt() AttemptService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		panic("service manager not initialized")
	}
	return m.attemptService
}

func (m *serviceManager) Grading() GradingService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		panic("service manager not initialized")
	}
	return m.gradingService
}

func (m *serviceManager) Proctor() ProctorService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		panic("service manager not initialized")
	}
	return m.proctorService
}

func (m *serviceManager) Analytics() AnalyticsService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		panic("service manager not initialized")
	}
	return m.analyticsService
}

func (m *serviceManager) Series() SeriesService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		panic("service manager not initialized")
	}
	return m.seriesService
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if m.shutdown {
		return fmt.Errorf("service manager has been shut down")
	}
	return m.repo.Ping(ctx)
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}
	m.shutdown = true

	var firstErr error
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close publisher: %w", err)
		}
	}
	if err := m.repo.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close repository: %w", err)
	}

	m.logger.Info("service manager shut down")
	return firstErr
}
