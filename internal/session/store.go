package session

import (
	"sort"
	"sync"
	"time"
)

// Store maps operators to their records. Records are created lazily and never removed.
type Store struct {
	mu           sync.Mutex
	records      map[Operator][]*Record
	defaultDelay time.Duration
}

// NewStore returns an empty store. New records start with defaultDelay as reconnect delay.
func NewStore(defaultDelay time.Duration) *Store {
	return &Store{
		records:      make(map[Operator][]*Record),
		defaultDelay: defaultDelay,
	}
}

// GetOrCreate returns the record for (operator, slot), creating it and any
// missing lower slots. slot is clamped to [1, MaxSlots].
func (s *Store) GetOrCreate(operator Operator, slot int) *Record {
	slot = ClampSlot(slot)
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.records[operator]
	for len(list) < slot {
		list = append(list, &Record{
			Operator:       operator,
			Slot:           len(list) + 1,
			ReconnectDelay: s.defaultDelay,
			State:          Disconnected,
		})
	}
	s.records[operator] = list
	return list[slot-1]
}

// Lookup returns the record for (operator, slot) without creating it.
func (s *Store) Lookup(operator Operator, slot int) (*Record, bool) {
	slot = ClampSlot(slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.records[operator]
	if len(list) < slot {
		return nil, false
	}
	return list[slot-1], true
}

// Get returns every record of operator in slot order.
func (s *Store) Get(operator Operator) ([]*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.records[operator]
	if !ok {
		return nil, false
	}
	return append([]*Record(nil), list...), true
}

// All returns every record ordered by operator then slot.
func (s *Store) All() []*Record {
	s.mu.Lock()
	operators := make([]Operator, 0, len(s.records))
	for op := range s.records {
		operators = append(operators, op)
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i] < operators[j] })
	var out []*Record
	for _, op := range operators {
		out = append(out, s.records[op]...)
	}
	s.mu.Unlock()
	return out
}
