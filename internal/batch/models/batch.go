// Package models defines the payment batch aggregate, its payment lines, and
// the append-only approval records.
package models

import (
	"fmt"
	"time"

	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
)

// BatchStatus is a payment batch's lifecycle position: created once, mutated
// twice, never re-opened.
type BatchStatus string

const (
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusPaid      BatchStatus = "paid"
	BatchStatusVerified  BatchStatus = "verified"
	BatchStatusRejected  BatchStatus = "rejected"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusSubmitted: {BatchStatusPaid},
	BatchStatusPaid:      {BatchStatusVerified, BatchStatusRejected},
	BatchStatusVerified:  {},
	BatchStatusRejected:  {},
}

// IsValid reports whether s is part of the batch vocabulary.
func (s BatchStatus) IsValid() bool {
	_, ok := batchTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentBatch groups many card requests into one payable invoice.
//
// Invariants:
//   - all member requests belong to RegionCode
//   - TotalCount and TotalAmount equal the member count and the sum of their
//     price snapshots at submission time; both are immutable afterwards
//   - a rejected batch carries a non-empty RejectionReason
type PaymentBatch struct {
	ID            id.BatchID  `json:"id"`
	InvoiceNumber string      `json:"invoice_number"`
	RegionCode    string      `json:"region_code"`
	Status        BatchStatus `json:"status"`

	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`

	ProofRef string     `json:"proof_ref,omitempty"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`

	VerifiedBy      string     `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	TotalCount  int   `json:"total_count"`
	TotalAmount int64 `json:"total_amount"`

	InvoiceRef string `json:"invoice_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPaymentBatch constructs a submitted batch. Totals are fixed here and
// never recomputed.
func NewPaymentBatch(invoiceNumber, regionCode, submittedBy string, totalCount int, totalAmount int64, now time.Time) (*PaymentBatch, error) {
	if invoiceNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "invoice number is required")
	}
	if regionCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "region code is required")
	}
	if submittedBy == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "submitting user is required")
	}
	if totalCount < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidRequestSet, "a batch needs at least one request")
	}
	return &PaymentBatch{
		ID:            id.NewBatchID(),
		InvoiceNumber: invoiceNumber,
		RegionCode:    regionCode,
		Status:        BatchStatusSubmitted,
		SubmittedBy:   submittedBy,
		SubmittedAt:   now,
		TotalCount:    totalCount,
		TotalAmount:   totalAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (b *PaymentBatch) invalidTransition(to BatchStatus) error {
	return dErrors.New(dErrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move batch %s from %s to %s", b.ID, b.Status, to))
}

// CanMarkPaid checks the submitted → paid guard.
func (b *PaymentBatch) CanMarkPaid(proofRef string) error {
	if !b.Status.CanTransitionTo(BatchStatusPaid) {
		return b.invalidTransition(BatchStatusPaid)
	}
	if proofRef == "" {
		return dErrors.New(dErrors.CodeValidation, "proof of payment reference is required")
	}
	return nil
}

// ApplyPaid records the proof of payment and moves to paid. Call CanMarkPaid
// first.
func (b *PaymentBatch) ApplyPaid(proofRef string, now time.Time) {
	b.ProofRef = proofRef
	b.PaidAt = &now
	b.Status = BatchStatusPaid
	b.UpdatedAt = now
}

// CanVerify checks the paid → verified|rejected guard, including the
// rejection reason requirement.
func (b *PaymentBatch) CanVerify(approved bool, reason string) error {
	to := BatchStatusVerified
	if !approved {
		to = BatchStatusRejected
	}
	if !b.Status.CanTransitionTo(to) {
		return b.invalidTransition(to)
	}
	if !approved && reason == "" {
		return dErrors.New(dErrors.CodeMissingRejectionReason,
			fmt.Sprintf("rejecting batch %s requires a reason", b.ID))
	}
	return nil
}

// ApplyVerification records the central decision. Call CanVerify first.
func (b *PaymentBatch) ApplyVerification(approved bool, reason, verifiedBy string, now time.Time) {
	if approved {
		b.Status = BatchStatusVerified
	} else {
		b.Status = BatchStatusRejected
		b.RejectionReason = reason
	}
	b.VerifiedBy = verifiedBy
	b.VerifiedAt = &now
	b.UpdatedAt = now
}
