package store

import "sync"

// Validator reports whether candidate may be inserted given the live records.
type Validator[T any] func(candidate T, table []T) bool

// Merger applies the meaningful fields of incoming onto existing in place.
type Merger[T any] func(existing *T, incoming T)

// Matcher reports whether existing is equivalent to candidate.
type Matcher[T any] func(existing T, candidate T) bool

// IdentitySetter stamps an assigned identity onto a record.
type IdentitySetter[T any] func(record *T, id int)

type slot[T any] struct {
	id     int
	record T
	live   bool
}

// Table is an ordered, identity-keyed collection of T.
type Table[T any] struct {
	mutex     sync.RWMutex
	slots     []slot[T]
	index     map[int]int
	currentID int
	dead      int
	setID     IdentitySetter[T]
}

// New creates an empty table. setID is called with every identity the table
// assigns so the record carries it.
func New[T any](setID IdentitySetter[T]) *Table[T] {
	return &Table[T]{
		index: make(map[int]int),
		setID: setID,
	}
}

// Add validates candidate against the current live records and, when accepted,
// assigns it the next identity and appends it. The returned bool is false when
// the validator rejected the candidate; no identity is consumed in that case.
func (t *Table[T]) Add(candidate T, isValid Validator[T]) (int, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if isValid != nil && !isValid(candidate, t.liveLocked()) {
		return 0, false
	}

	t.currentID++
	id := t.currentID
	if t.setID != nil {
		t.setID(&candidate, id)
	}

	t.index[id] = len(t.slots)
	t.slots = append(t.slots, slot[T]{id: id, record: candidate, live: true})

	return id, true
}

// Get returns the live record with the given identity.
func (t *Table[T]) Get(id int) (T, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	pos, ok := t.index[id]
	if !ok {
		var zero T
		return zero, false
	}

	return t.slots[pos].record, true
}

// GetAll returns the live records in insertion order. The slice is a copy.
func (t *Table[T]) GetAll() []T {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.liveLocked()
}

// Update merges incoming into the record with the given identity. It returns
// false when no live record has that identity.
func (t *Table[T]) Update(id int, incoming T, merge Merger[T]) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	pos, ok := t.index[id]
	if !ok {
		return false
	}

	if merge != nil {
		merge(&t.slots[pos].record, incoming)
	}
	// merge must not be able to move a record to another identity
	if t.setID != nil {
		t.setID(&t.slots[pos].record, id)
	}

	return true
}

// Remove deletes the record with the given identity. It returns false when no
// live record has that identity.
func (t *Table[T]) Remove(id int) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	pos, ok := t.index[id]
	if !ok {
		return false
	}

	var zero T
	t.slots[pos].record = zero
	t.slots[pos].live = false
	delete(t.index, id)
	t.dead++

	if t.dead > len(t.index) {
		t.compactLocked()
	}

	return true
}

// Exists reports whether any live record matches candidate.
func (t *Table[T]) Exists(candidate T, match Matcher[T]) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, s := range t.slots {
		if s.live && match(s.record, candidate) {
			return true
		}
	}

	return false
}

// Len returns the number of live records.
func (t *Table[T]) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.index)
}

func (t *Table[T]) liveLocked() []T {
	records := make([]T, 0, len(t.index))
	for _, s := range t.slots {
		if s.live {
			records = append(records, s.record)
		}
	}

	return records
}

func (t *Table[T]) compactLocked() {
	slots := make([]slot[T], 0, len(t.index))
	for _, s := range t.slots {
		if !s.live {
			continue
		}
		t.index[s.id] = len(slots)
		slots = append(slots, s)
	}

	t.slots = slots
	t.dead = 0
}
