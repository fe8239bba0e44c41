package models

import (
	"time"

	id "kta/pkg/domain"
)

// Decision is the outcome a verification recorded for one request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ApprovalRecord is the append-only audit entry written once per request when
// its batch is verified or rejected. Records are never mutated or deleted.
type ApprovalRecord struct {
	ID        id.ApprovalID `json:"id"`
	RequestID id.RequestID  `json:"request_id"`
	BatchID   id.BatchID    `json:"batch_id"`
	Decision  Decision      `json:"decision"`
	Reason    string        `json:"reason,omitempty"`
	DecidedBy string        `json:"decided_by"`
	DecidedAt time.Time     `json:"decided_at"`
}

// NewApprovalRecord constructs one verification outcome entry.
func NewApprovalRecord(requestID id.RequestID, batchID id.BatchID, decision Decision, reason, decidedBy string, now time.Time) *ApprovalRecord {
	return &ApprovalRecord{
		ID:        id.NewApprovalID(),
		RequestID: requestID,
		BatchID:   batchID,
		Decision:  decision,
		Reason:    reason,
		DecidedBy: decidedBy,
		DecidedAt: now,
	}
}
