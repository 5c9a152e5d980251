// Package board holds the per-user scheduling state: a fixed set of
// three people slots and a date-keyed list of status labels. State is
// process-lifetime only.
package board

import (
	"sync"
)

// NumSlots is the number of people slots on a board.
const NumSlots = 3

// Person is one people slot. Empty name and role means the slot is
// unassigned.
type Person struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Store is one user's board. All methods are safe for concurrent use;
// concurrent writers to the same field interleave last-write-wins.
type Store struct {
	mu           sync.Mutex
	people       [NumSlots]Person
	eventsByDate map[string][]string
}

func newStore() *Store {
	return &Store{eventsByDate: make(map[string][]string)}
}

// People returns a copy of the three people slots.
func (s *Store) People() [NumSlots]Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.people
}

// SetSlot overwrites slot (1-based, 1..3). Returns false for an
// out-of-range slot.
func (s *Store) SetSlot(slot int, p Person) bool {
	if slot < 1 || slot > NumSlots {
		return false
	}
	s.mu.Lock()
	s.people[slot-1] = p
	s.mu.Unlock()
	return true
}

// ClearSlot resets slot (1-based) to the unassigned state.
func (s *Store) ClearSlot(slot int) bool {
	return s.SetSlot(slot, Person{})
}

// Events returns a copy of the full date-to-statuses mapping.
func (s *Store) Events() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.eventsByDate))
	for date, statuses := range s.eventsByDate {
		out[date] = append([]string(nil), statuses...)
	}
	return out
}

// EventsOn returns a copy of the statuses for date. Absent dates yield
// an empty slice, never nil, so JSON encodes them as [].
func (s *Store) EventsOn(date string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.eventsByDate[date]...)
}

// AddEvent appends status to date's list unless it is already present.
// Insertion order is preserved.
func (s *Store) AddEvent(date, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.eventsByDate[date] {
		if existing == status {
			return
		}
	}
	s.eventsByDate[date] = append(s.eventsByDate[date], status)
}

// RemoveEvent removes one occurrence of status from date's list. When
// the last status goes the date key is deleted, so the mapping never
// carries empty lists.
func (s *Store) RemoveEvent(date, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := s.eventsByDate[date]
	for i, existing := range statuses {
		if existing == status {
			statuses = append(statuses[:i], statuses[i+1:]...)
			break
		}
	}
	if len(statuses) == 0 {
		delete(s.eventsByDate, date)
	} else {
		s.eventsByDate[date] = statuses
	}
}

// Registry maps subject identifiers to their boards, creating a board
// on first use.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// ForSubject returns sub's board, creating an empty one if needed.
func (r *Registry) ForSubject(sub string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[sub]
	if !ok {
		store = newStore()
		r.stores[sub] = store
	}
	return store
}
