package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/cache"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/store"
)

// ErrInvalidRole is returned for role names outside store.Role.
var ErrInvalidRole = errors.New("invalid role")

// Service manages user accounts.
type Service struct {
	store    store.Store
	engine   *core.Engine
	metrics  *metrics.Metrics
	sessions core.Disconnector
	reads    *cache.Reads
	log      *zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDisconnector ends a deleted user's live sessions.
func WithDisconnector(d core.Disconnector) Option {
	return func(s *Service) { s.sessions = d }
}

// WithReadCache invalidates cached message reads after an account is purged.
func WithReadCache(r *cache.Reads) Option {
	return func(s *Service) { s.reads = r }
}

// New creates a new user service. m may be nil.
func New(st store.Store, engine *core.Engine, m *metrics.Metrics, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{store: st, engine: engine, metrics: m, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, userID int64) (*store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, userID int64, name string) error {
	role, ok := store.ParseRole(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	if err := s.store.SetUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Str("role", string(role)).Msg("role changed")
	return nil
}

// DeleteAccount removes a user and everything they take part in within one
// transaction. It reports false when the user did not exist.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) (bool, core.PurgeStats, error) {
	var (
		removed bool
		stats   core.PurgeStats
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if stats, err = s.engine.OnUserDeleted(ctx, tx, userID); err != nil {
			return fmt.Errorf("purge user data: %w", err)
		}
		if removed, err = tx.DeleteUser(ctx, userID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, core.PurgeStats{}, err
	}

	if removed {
		s.reads.Invalidate()
		if s.sessions != nil {
			s.sessions.Disconnect(userID, core.AccountDeleted())
		}
		s.metrics.UserPurged()
		s.log.Info().Int64("user_id", userID).Msg("account deleted")
	}
	return removed, stats, nil
}
