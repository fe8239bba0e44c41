package models

// Status is one card request's lifecycle position. The vocabulary is fixed:
// this is one issuance process, not a configurable workflow.
type Status string

const (
	// StatusDraft is the initial state; rejection also resets here.
	StatusDraft Status = "DRAFT"
	// StatusFetched means applicant identity was pulled from the registry.
	StatusFetched Status = "FETCHED"
	// StatusEdited means a submitter amended the fetched data.
	StatusEdited Status = "EDITED"
	// StatusWaitingPayment means the request joined a payment batch and
	// carries a price snapshot.
	StatusWaitingPayment Status = "WAITING_PAYMENT"
	// StatusReadyForReview means the owning batch was marked paid.
	StatusReadyForReview Status = "READY_FOR_REVIEW"
	// StatusApproved means the owning batch was verified.
	StatusApproved Status = "APPROVED"
	// StatusReadyToPrint means a serial and card artifact exist.
	StatusReadyToPrint Status = "READY_TO_PRINT"
	// StatusPrinted is terminal: an operator confirmed the physical card.
	StatusPrinted Status = "PRINTED"
	// StatusRejected is the transient side state of a batch rejection; it
	// immediately loops back to StatusDraft.
	StatusRejected Status = "REJECTED"
)

// transitions is the complete legal-move table. Every move is one-directional
// except the rejection loop, and no move skips a state.
var transitions = map[Status][]Status{
	StatusDraft:          {StatusFetched, StatusWaitingPayment},
	StatusFetched:        {StatusFetched, StatusEdited, StatusWaitingPayment},
	StatusEdited:         {StatusEdited, StatusWaitingPayment},
	StatusWaitingPayment: {StatusReadyForReview, StatusRejected},
	StatusReadyForReview: {StatusApproved, StatusRejected},
	StatusApproved:       {StatusReadyToPrint, StatusRejected},
	StatusReadyToPrint:   {StatusPrinted},
	StatusPrinted:        {},
	StatusRejected:       {StatusDraft},
}

// IsValid reports whether s is part of the lifecycle vocabulary.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Batchable reports whether a request in this status may join a new payment
// batch.
func (s Status) Batchable() bool {
	switch s {
	case StatusDraft, StatusFetched, StatusEdited:
		return true
	default:
		return false
	}
}

// RequiresSerial reports whether this status implies a non-empty serial.
func (s Status) RequiresSerial() bool {
	return s == StatusReadyToPrint || s == StatusPrinted
}
