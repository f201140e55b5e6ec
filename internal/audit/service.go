package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort is the persistence surface the service needs.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, bool, error)
}

// Service writes and reads the audit log. Writes are best-effort: a failed
// insert is logged and swallowed so audit outages never block the action
// being recorded.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record appends one entry. Missing ID and timestamp are filled in here so
// callers only describe the action.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		s.logger.Error("audit write failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err,
		)
	}
}

// Query returns matching entries newest first, plus a has-next flag.
func (s *Service) Query(ctx context.Context, f Filter) ([]Entry, bool, error) {
	return s.repo.Query(ctx, f)
}
