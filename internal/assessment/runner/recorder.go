package runner

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

// Recorder persists the session row and its event log. The gorm SessionRepo
// implements it.
type Recorder interface {
	CreateSession(ctx context.Context, s *assessment.AssessmentSession) error
	AppendEvent(ctx context.Context, ev *assessment.AssessmentEvent) error
	CompleteSession(ctx context.Context, id uuid.UUID, report datatypes.JSON) error
	FailSession(ctx context.Context, id uuid.UUID, status assessment.SessionStatus, reason string) error
}

// ExclusionSource lists item ids removed from every pool.
type ExclusionSource interface {
	ExcludedIDs(ctx context.Context) ([]string, error)
}

type nopRecorder struct{}

func (nopRecorder) CreateSession(context.Context, *assessment.AssessmentSession) error { return nil }
func (nopRecorder) AppendEvent(context.Context, *assessment.AssessmentEvent) error     { return nil }
func (nopRecorder) CompleteSession(context.Context, uuid.UUID, datatypes.JSON) error   { return nil }
func (nopRecorder) FailSession(context.Context, uuid.UUID, assessment.SessionStatus, string) error {
	return nil
}
