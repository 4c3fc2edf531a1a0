package ticker

import (
	"sync/atomic"
)

// Store holds the current StockData record. There is one writer, the
// session driver, and any number of readers.
type Store struct {
	current atomic.Pointer[StockData]
	version atomic.Uint64
	updated chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{updated: make(chan struct{}, 1)}
}

// Load returns the current record, or nil before the first Publish. The
// returned record must not be modified.
func (s *Store) Load() *StockData {
	return s.current.Load()
}

// Publish replaces the current record with sd. Records without history are
// rejected and leave the store unchanged.
func (s *Store) Publish(sd *StockData) error {
	if sd.Len() == 0 {
		return ErrEmptyHistory
	}
	s.current.Store(sd)
	s.version.Add(1)
	select {
	case s.updated <- struct{}{}:
	default:
	}
	return nil
}

// Version counts successful publishes.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Updated returns a channel that receives after a publish. Notifications
// coalesce: several publishes between reads yield one receive.
func (s *Store) Updated() <-chan struct{} {
	return s.updated
}
