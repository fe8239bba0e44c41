// Package domain defines the typed identifiers shared across the card
// issuance services. Wrapping uuid.UUID keeps signatures self-documenting and
// prevents accidentally passing a batch id where a request id is expected.
package domain

import "github.com/google/uuid"

// RequestID identifies one applicant's card request.
type RequestID uuid.UUID

func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the canonical uuid form. Defined types do not inherit
// uuid.UUID's marshalers, so without this the ids would serialize as raw byte
// arrays in JSON bodies.
func (id RequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses the canonical uuid form.
func (id *RequestID) UnmarshalText(data []byte) error {
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return err
	}
	*id = RequestID(u)
	return nil
}

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseRequestID parses the canonical string form of a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// BatchID identifies a bulk payment batch.
type BatchID uuid.UUID

func (id BatchID) String() string { return uuid.UUID(id).String() }
func (id BatchID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the canonical uuid form.
func (id BatchID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses the canonical uuid form.
func (id *BatchID) UnmarshalText(data []byte) error {
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return err
	}
	*id = BatchID(u)
	return nil
}

// NewBatchID returns a fresh random BatchID.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// ParseBatchID parses the canonical string form of a BatchID.
func ParseBatchID(s string) (BatchID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return BatchID{}, err
	}
	return BatchID(u), nil
}

// ApprovalID identifies one append-only approval record.
type ApprovalID uuid.UUID

func (id ApprovalID) String() string { return uuid.UUID(id).String() }
func (id ApprovalID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the canonical uuid form.
func (id ApprovalID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses the canonical uuid form.
func (id *ApprovalID) UnmarshalText(data []byte) error {
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return err
	}
	*id = ApprovalID(u)
	return nil
}

// NewApprovalID returns a fresh random ApprovalID.
func NewApprovalID() ApprovalID { return ApprovalID(uuid.New()) }
