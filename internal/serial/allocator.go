// Package serial allocates the human-readable card serial (nomorKTA).
//
// A serial has the fixed shape REGIONCODE.TIERBUCKET.SEQUENCE, where the
// sequence is a 6-digit zero-padded integer scoped to the (region, bucket)
// pair, starting at 1. Uniqueness rests entirely on the counter store's
// atomic increment: counting existing serials and adding one is racy and is
// not done anywhere in this package.
package serial

import (
	"context"
	"fmt"

	"kta/internal/pricing"
	dErrors "kta/pkg/domain-errors"
)

// maxSequence is the largest value the 6-digit sequence segment can hold.
const maxSequence = 999_999

// CounterStore hands out the next sequence number for a (region, bucket)
// scope. Implementations must guarantee that concurrent calls for the same
// scope never return the same value: a database upsert-increment, a Redis
// INCR, or a mutex-guarded map all qualify; a read-then-write does not.
type CounterStore interface {
	Next(ctx context.Context, regionCode, bucket string) (int64, error)
}

// Allocator derives unique serials from the counter store.
type Allocator struct {
	counters CounterStore
}

func NewAllocator(counters CounterStore) *Allocator {
	return &Allocator{counters: counters}
}

// Allocate returns the serial for a card. When existingSerial is non-empty
// the request was already allocated and it is returned unchanged; no counter
// is consumed.
func (a *Allocator) Allocate(ctx context.Context, regionCode string, tier int, existingSerial string) (string, error) {
	if existingSerial != "" {
		return existingSerial, nil
	}

	bucket, err := pricing.Bucket(tier)
	if err != nil {
		return "", err
	}

	seq, err := a.counters.Next(ctx, regionCode, bucket)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "advance serial counter")
	}
	if seq < 1 || seq > maxSequence {
		return "", dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("serial sequence %d outside the 6-digit range for %s.%s", seq, regionCode, bucket))
	}

	return Format(regionCode, bucket, seq), nil
}

// Format renders the canonical serial shape.
func Format(regionCode, bucket string, seq int64) string {
	return fmt.Sprintf("%s.%s.%06d", regionCode, bucket, seq)
}
