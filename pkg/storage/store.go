package storage

import "context"

// SeenStore records which transaction hashes the gateway has already
// processed. FirstSeen is an atomic test-and-set: of any number of
// concurrent calls with the same hash, exactly one observes true.
//
// Entries expire after the store's retention window. Expiry bounds memory,
// not correctness: a redelivery beyond the window is treated as a new event.
type SeenStore interface {
	// FirstSeen returns true when this call is the first sighting of hash.
	FirstSeen(ctx context.Context, hash string) (bool, error)

	// Close releases resources
	Close() error
}
