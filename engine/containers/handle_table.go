package containers

// HandleTable maps generational ids to values. Released ids are reused,
// and each reuse bumps the generation so stale handles stop resolving.
// Id 0 and generation 0 are never handed out; a zero handle means null.
type HandleTable[T any] struct {
	entries []handleEntry[T]
	free    []uint32
	live    int
}

type handleEntry[T any] struct {
	value      T
	generation uint32
	used       bool
}

func NewHandleTable[T any]() *HandleTable[T] {
	// Slot 0 stays reserved.
	return &HandleTable[T]{entries: make([]handleEntry[T], 1, 64)}
}

// Insert stores value and returns its id and generation.
func (t *HandleTable[T]) Insert(value T) (uint32, uint32) {
	var id uint32
	if n := len(t.free); n > 0 {
		id = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.entries = append(t.entries, handleEntry[T]{})
		id = uint32(len(t.entries) - 1)
	}
	e := &t.entries[id]
	e.generation++
	e.value = value
	e.used = true
	t.live++
	return id, e.generation
}

// Get resolves a handle. The second result is false for stale or unknown
// handles.
func (t *HandleTable[T]) Get(id, generation uint32) (T, bool) {
	var zero T
	if id == 0 || int(id) >= len(t.entries) {
		return zero, false
	}
	e := &t.entries[id]
	if !e.used || e.generation != generation {
		return zero, false
	}
	return e.value, true
}

// Remove releases a handle and returns the stored value.
func (t *HandleTable[T]) Remove(id, generation uint32) (T, bool) {
	v, ok := t.Get(id, generation)
	if !ok {
		return v, false
	}
	var zero T
	t.entries[id].value = zero
	t.entries[id].used = false
	t.free = append(t.free, id)
	t.live--
	return v, true
}

// Len returns the number of live handles.
func (t *HandleTable[T]) Len() int {
	return t.live
}

// Each visits every live entry in id order.
func (t *HandleTable[T]) Each(fn func(id, generation uint32, value T)) {
	for id := 1; id < len(t.entries); id++ {
		e := &t.entries[id]
		if e.used {
			fn(uint32(id), e.generation, e.value)
		}
	}
}
