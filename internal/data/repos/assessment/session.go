package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, row *types.AssessmentSession) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AssessmentSession, error)
	ListByStatus(dbc dbctx.Context, status types.SessionStatus, limit int) ([]*types.AssessmentSession, error)
	Complete(dbc dbctx.Context, id uuid.UUID, report datatypes.JSON) error
	Fail(dbc dbctx.Context, id uuid.UUID, status types.SessionStatus, reason string) error

	AppendEvent(dbc dbctx.Context, ev *types.AssessmentEvent) error
	ListEvents(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AssessmentEvent, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, row *types.AssessmentSession) error {
	if row == nil {
		return errors.Mark(errors.New("session row is required"), errors.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.SessionRunning
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = now
	}
	row.UpdatedAt = now
	return dbc.DB(r.db).Create(row).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AssessmentSession, error) {
	var rows []*types.AssessmentSession
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Mark(errors.Newf("session %s not found", id), errors.ErrNotFound)
	}
	return rows[0], nil
}

func (r *sessionRepo) ListByStatus(dbc dbctx.Context, status types.SessionStatus, limit int) ([]*types.AssessmentSession, error) {
	out := []*types.AssessmentSession{}
	q := dbc.DB(r.db).Where("status = ?", status).Order("started_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) Complete(dbc dbctx.Context, id uuid.UUID, report datatypes.JSON) error {
	now := time.Now().UTC()
	return r.transition(dbc, id, map[string]any{
		"status":       types.SessionCompleted,
		"report":       report,
		"completed_at": now,
		"updated_at":   now,
	})
}

func (r *sessionRepo) Fail(dbc dbctx.Context, id uuid.UUID, status types.SessionStatus, reason string) error {
	if status != types.SessionAborted && status != types.SessionFailed {
		return errors.Mark(errors.Newf("invalid terminal status %q", status), errors.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	return r.transition(dbc, id, map[string]any{
		"status":         status,
		"failure_reason": reason,
		"completed_at":   now,
		"updated_at":     now,
	})
}

// transition moves a running session to a terminal state. Terminal sessions
// are never rewritten.
func (r *sessionRepo) transition(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	res := dbc.DB(r.db).
		Model(&types.AssessmentSession{}).
		Where("id = ? AND status = ?", id, types.SessionRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Mark(errors.Newf("no running session %s", id), errors.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) AppendEvent(dbc dbctx.Context, ev *types.AssessmentEvent) error {
	if ev == nil || ev.SessionID == uuid.Nil {
		return errors.Mark(errors.New("event with session id is required"), errors.ErrInvalidArgument)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Create(ev).Error
}

func (r *sessionRepo) ListEvents(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AssessmentEvent, error) {
	out := []*types.AssessmentEvent{}
	if sessionID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SessionRecorder adapts a SessionRepo to the runner's recorder contract.
type SessionRecorder struct {
	repo SessionRepo
}

func NewSessionRecorder(repo SessionRepo) *SessionRecorder {
	return &SessionRecorder{repo: repo}
}

func (s *SessionRecorder) CreateSession(ctx context.Context, row *types.AssessmentSession) error {
	return s.repo.Create(dbctx.New(ctx), row)
}

func (s *SessionRecorder) AppendEvent(ctx context.Context, ev *types.AssessmentEvent) error {
	return s.repo.AppendEvent(dbctx.New(ctx), ev)
}

func (s *SessionRecorder) CompleteSession(ctx context.Context, id uuid.UUID, report datatypes.JSON) error {
	return s.repo.Complete(dbctx.New(ctx), id, report)
}

func (s *SessionRecorder) FailSession(ctx context.Context, id uuid.UUID, status types.SessionStatus, reason string) error {
	return s.repo.Fail(dbctx.New(ctx), id, status, reason)
}
