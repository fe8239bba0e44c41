// Package store implements the monotonic counters behind serial allocation.
//
// Every backend provides the same contract: Next atomically increments and
// returns the counter for a (region, bucket) scope, starting at 1. The same
// counters also number batch invoices, under the reserved "INV" bucket.
package store

// InvoiceBucket is the reserved bucket code for batch invoice numbering. It
// cannot collide with tier buckets, which are always two digits.
const InvoiceBucket = "INV"
