package util

import "github.com/oklog/ulid/v2"

// NewID returns a new lexicographically sortable identifier. Run and order
// IDs use it so ledger rows sort in creation order.
func NewID() string {
	return ulid.Make().String()
}
