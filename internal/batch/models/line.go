package models

import (
	"time"

	id "kta/pkg/domain"
)

// LineStatus mirrors the owning batch's status per member request. Lines are
// only ever moved by the batch reconciler, in lockstep with the batch; no
// other path touches them.
type LineStatus string

const (
	LineStatusPending  LineStatus = "pending"
	LineStatusPaid     LineStatus = "paid"
	LineStatusVerified LineStatus = "verified"
	LineStatusRejected LineStatus = "rejected"
)

// lineStatusFor maps a batch status to the line status its members carry.
var lineStatusFor = map[BatchStatus]LineStatus{
	BatchStatusSubmitted: LineStatusPending,
	BatchStatusPaid:      LineStatusPaid,
	BatchStatusVerified:  LineStatusVerified,
	BatchStatusRejected:  LineStatusRejected,
}

// LineStatusFor returns the line status matching a batch status.
func LineStatusFor(status BatchStatus) LineStatus {
	return lineStatusFor[status]
}

// PaymentLine joins one request to its batch and carries the frozen per-line
// amount.
type PaymentLine struct {
	BatchID   id.BatchID   `json:"batch_id"`
	RequestID id.RequestID `json:"request_id"`
	Amount    int64        `json:"amount"`
	Status    LineStatus   `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
