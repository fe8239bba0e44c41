// Package models defines the card request aggregate and its lifecycle state
// machine.
package models

import (
	"fmt"
	"time"

	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
)

// PriceSnapshot is the price pair frozen onto a request when it joins a
// payment batch. Later regional discount changes never alter it; only a
// batch rejection clears it.
type PriceSnapshot struct {
	BasePrice  int64 `json:"base_price"`
	FinalPrice int64 `json:"final_price"`
}

// Request is one applicant's card issuance record.
//
// Invariants:
//   - Status is always a member of the lifecycle vocabulary
//   - Serial is set exactly once and is immutable thereafter
//   - Serial is non-empty if and only if Status is READY_TO_PRINT or PRINTED
//   - Price is non-nil exactly while the request sits in a live batch
//     (WAITING_PAYMENT through APPROVED) or has been issued
//   - RegionCode is immutable after construction
type Request struct {
	ID                id.RequestID `json:"id"`
	NationalID        string       `json:"national_id"`
	Name              string       `json:"name"`
	JobTitle          string       `json:"job_title"`
	SubClassification string       `json:"sub_classification"`
	Tier              int          `json:"tier"`
	RegionCode        string       `json:"region_code"`
	Status            Status       `json:"status"`
	Serial            string       `json:"serial,omitempty"`
	ArtifactRef       string       `json:"artifact_ref,omitempty"`
	BatchID           id.BatchID   `json:"batch_id,omitzero"`

	Price *PriceSnapshot `json:"price,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRequest constructs a draft request for an applicant identified by their
// national id, owned by the given region.
func NewRequest(nationalID, regionCode string, now time.Time) (*Request, error) {
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "national id is required")
	}
	if regionCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "region code is required")
	}
	return &Request{
		ID:         id.NewRequestID(),
		NationalID: nationalID,
		RegionCode: regionCode,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CheckIntegrity verifies the serial/status invariant. Stores call it before
// persisting and transports before serving, so a corrupt record is caught,
// not assumed away.
func (r *Request) CheckIntegrity() error {
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown status %q", r.Status))
	}
	if r.Status.RequiresSerial() && r.Serial == "" {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("request %s in %s without a serial", r.ID, r.Status))
	}
	if !r.Status.RequiresSerial() && r.Serial != "" {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("request %s in %s carries serial %s", r.ID, r.Status, r.Serial))
	}
	return nil
}

// IsIssued reports whether both the serial and the card artifact exist.
func (r *Request) IsIssued() bool {
	return r.Serial != "" && r.ArtifactRef != ""
}

func (r *Request) invalidTransition(to Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move request %s from %s to %s", r.ID, r.Status, to))
}

// CanApplyRegistryData checks that registry data may (re)populate the request.
func (r *Request) CanApplyRegistryData() error {
	if !r.Status.CanTransitionTo(StatusFetched) {
		return r.invalidTransition(StatusFetched)
	}
	return nil
}

// ApplyRegistryData fills identity fields from the external registry and
// moves to FETCHED. Call CanApplyRegistryData first.
func (r *Request) ApplyRegistryData(name, jobTitle, subClassification string, tier int, now time.Time) {
	r.Name = name
	r.JobTitle = jobTitle
	r.SubClassification = subClassification
	r.Tier = tier
	r.Status = StatusFetched
	r.UpdatedAt = now
}

// Edit captures a submitter's corrections to fetched data.
type Edit struct {
	Name              string
	JobTitle          string
	SubClassification string
	Tier              int
}

// CanApplyEdit checks that the request accepts amendments.
func (r *Request) CanApplyEdit() error {
	if !r.Status.CanTransitionTo(StatusEdited) {
		return r.invalidTransition(StatusEdited)
	}
	return nil
}

// ApplyEdit amends identity fields and moves to EDITED. Call CanApplyEdit
// first.
func (r *Request) ApplyEdit(edit Edit, now time.Time) {
	if edit.Name != "" {
		r.Name = edit.Name
	}
	if edit.JobTitle != "" {
		r.JobTitle = edit.JobTitle
	}
	if edit.SubClassification != "" {
		r.SubClassification = edit.SubClassification
	}
	if edit.Tier != 0 {
		r.Tier = edit.Tier
	}
	r.Status = StatusEdited
	r.UpdatedAt = now
}

// CanSubmitForPayment checks that the request may join a new payment batch:
// it must be in a batchable status and carry fetched applicant data.
func (r *Request) CanSubmitForPayment() error {
	if !r.Status.Batchable() {
		return r.invalidTransition(StatusWaitingPayment)
	}
	if r.Tier == 0 {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("request %s has no applicant data; fetch from registry first", r.ID))
	}
	return nil
}

// ApplySubmission freezes the price and moves to WAITING_PAYMENT. Call
// CanSubmitForPayment first.
func (r *Request) ApplySubmission(batchID id.BatchID, price PriceSnapshot, now time.Time) {
	r.BatchID = batchID
	r.Price = &price
	r.Status = StatusWaitingPayment
	r.UpdatedAt = now
}

// CanMarkPaymentReceived checks the WAITING_PAYMENT → READY_FOR_REVIEW guard.
func (r *Request) CanMarkPaymentReceived() error {
	if !r.Status.CanTransitionTo(StatusReadyForReview) {
		return r.invalidTransition(StatusReadyForReview)
	}
	return nil
}

// ApplyPaymentReceived moves to READY_FOR_REVIEW. Call CanMarkPaymentReceived
// first.
func (r *Request) ApplyPaymentReceived(now time.Time) {
	r.Status = StatusReadyForReview
	r.UpdatedAt = now
}

// CanApprove checks the READY_FOR_REVIEW → APPROVED guard.
func (r *Request) CanApprove() error {
	if !r.Status.CanTransitionTo(StatusApproved) {
		return r.invalidTransition(StatusApproved)
	}
	return nil
}

// ApplyApproval moves to APPROVED. Call CanApprove first.
func (r *Request) ApplyApproval(now time.Time) {
	r.Status = StatusApproved
	r.UpdatedAt = now
}

// CanReject checks that the request sits in a rejectable status.
func (r *Request) CanReject() error {
	if !r.Status.CanTransitionTo(StatusRejected) {
		return r.invalidTransition(StatusRejected)
	}
	return nil
}

// ApplyRejection runs the rejection loop: through REJECTED back to DRAFT,
// detaching the request from its batch and clearing the price snapshot so a
// re-submission is re-priced. Call CanReject first.
func (r *Request) ApplyRejection(now time.Time) {
	r.Status = StatusDraft
	r.BatchID = id.BatchID{}
	r.Price = nil
	r.UpdatedAt = now
}

// CanStartIssuance checks the APPROVED → READY_TO_PRINT guard before any
// serial is drawn, so a refused request never consumes a sequence number.
func (r *Request) CanStartIssuance() error {
	if !r.Status.CanTransitionTo(StatusReadyToPrint) {
		return r.invalidTransition(StatusReadyToPrint)
	}
	return nil
}

// CanIssue checks the APPROVED → READY_TO_PRINT guard and the set-once serial
// rule.
func (r *Request) CanIssue(serial string) error {
	if !r.Status.CanTransitionTo(StatusReadyToPrint) {
		return r.invalidTransition(StatusReadyToPrint)
	}
	if serial == "" {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("request %s cannot reach READY_TO_PRINT without a serial", r.ID))
	}
	if r.Serial != "" && r.Serial != serial {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("request %s already carries serial %s", r.ID, r.Serial))
	}
	return nil
}

// ApplyIssuance writes the serial and artifact reference and moves to
// READY_TO_PRINT as one update. Call CanIssue first.
func (r *Request) ApplyIssuance(serial, artifactRef string, now time.Time) {
	r.Serial = serial
	r.ArtifactRef = artifactRef
	r.Status = StatusReadyToPrint
	r.UpdatedAt = now
}

// CanConfirmPrinted checks the READY_TO_PRINT → PRINTED guard, including the
// serial invariant.
func (r *Request) CanConfirmPrinted() error {
	if !r.Status.CanTransitionTo(StatusPrinted) {
		return r.invalidTransition(StatusPrinted)
	}
	if r.Serial == "" {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("request %s cannot be printed without a serial", r.ID))
	}
	return nil
}

// ApplyPrinted moves to the terminal PRINTED status. Call CanConfirmPrinted
// first.
func (r *Request) ApplyPrinted(now time.Time) {
	r.Status = StatusPrinted
	r.UpdatedAt = now
}
