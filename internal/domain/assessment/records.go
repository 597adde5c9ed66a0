package assessment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ItemExposure is the persisted administration count of one item across all
// sessions.
type ItemExposure struct {
	ItemID    string    `gorm:"column:item_id;primaryKey" json:"item_id"`
	Count     uint32    `gorm:"column:count;not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ItemExposure) TableName() string { return "item_exposure" }

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
	SessionFailed    SessionStatus = "failed"
)

// AssessmentSession archives one respondent's run through a plan.
type AssessmentSession struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID         string         `gorm:"column:plan_id;not null;index" json:"plan_id"`
	FormID         string         `gorm:"column:form_id" json:"form_id,omitempty"`
	RespondentHash string         `gorm:"column:respondent_hash;index" json:"respondent_hash,omitempty"`
	Seed           uint64         `gorm:"column:seed;not null;default:0" json:"seed"`
	Status         SessionStatus  `gorm:"column:status;not null;index" json:"status"`
	Report         datatypes.JSON `gorm:"column:report" json:"report,omitempty"`
	FailureReason  string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	StartedAt      time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (AssessmentSession) TableName() string { return "assessment_session" }

type EventType string

const (
	EventNodeStart EventType = "NODE_START"
	EventItem      EventType = "ITEM"
	EventNodeEnd   EventType = "NODE_END"
)

// AssessmentEvent is one entry of a session's append-only event log.
type AssessmentEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID      `gorm:"type:uuid;not null;index:idx_assessment_event_seq,priority:1" json:"session_id"`
	Seq       int            `gorm:"column:seq;not null;index:idx_assessment_event_seq,priority:2" json:"seq"`
	Type      EventType      `gorm:"column:type;not null" json:"type"`
	NodeID    string         `gorm:"column:node_id" json:"node_id,omitempty"`
	Domain    string         `gorm:"column:domain" json:"domain,omitempty"`
	ItemID    string         `gorm:"column:item_id" json:"item_id,omitempty"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (AssessmentEvent) TableName() string { return "assessment_event" }

// ItemExclusion removes an item from every pool, typically after an offline
// DIF screen flagged it.
type ItemExclusion struct {
	ItemID    string    `gorm:"column:item_id;primaryKey" json:"item_id"`
	Reason    string    `gorm:"column:reason;not null;default:''" json:"reason"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ItemExclusion) TableName() string { return "item_exclusion" }
