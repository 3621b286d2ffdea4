package repositories

import "context"

// Repository aggregates all per-domain repositories. WithTransaction hands
// the callback a repository whose writes share one database transaction.
type Repository interface {
	// Series domain (read-only for the attempt engine)
	Series() SeriesRepository

	// Question bank (read-only)
	Question() QuestionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Response() ResponseRepository
	CheatingEvent() CheatingEventRepository
	Counter() CounterRepository

	// User domain (resolved from the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager owns the repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
