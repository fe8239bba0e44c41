package audit

import "time"

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// payment verification outcomes, approval records, discount changes.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: batch creation, card issuance, print confirmations. These
	// can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	ActorID    string // authenticated user who performed the action
	Subject    string // entity the action applies to (request id, batch id, region code)
	Action     string
	BatchID    string // owning batch when the subject is a member request
	RegionCode string
	Decision   string // outcome for verification events: "approved" or "rejected"
	Reason     string // human-readable reason, required for rejections
	Amount     int64  // money involved, in IDR, when applicable
	RequestID  string // correlation id from the HTTP request context
}

// AuditEvent names every action the issuance flow records.
type AuditEvent string

const (
	EventBatchCreated    AuditEvent = "batch_created"
	EventBatchPaid       AuditEvent = "batch_paid"
	EventBatchVerified   AuditEvent = "batch_verified"
	EventBatchRejected   AuditEvent = "batch_rejected"
	EventCardIssued      AuditEvent = "card_issued"
	EventRequestPrinted  AuditEvent = "request_printed"
	EventDiscountChanged AuditEvent = "discount_changed"
)

// eventCategories maps each audit event to its category. Verification
// outcomes and pricing policy changes carry regulatory weight; the rest is
// operational visibility.
var eventCategories = map[AuditEvent]EventCategory{
	EventBatchVerified:   CategoryCompliance,
	EventBatchRejected:   CategoryCompliance,
	EventDiscountChanged: CategoryCompliance,

	EventBatchCreated:   CategoryOperations,
	EventBatchPaid:      CategoryOperations,
	EventCardIssued:     CategoryOperations,
	EventRequestPrinted: CategoryOperations,
}

// Category returns the EventCategory for this audit event. Unknown events
// default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
