package indicator

// Ring is a fixed-capacity ring buffer that reuses its backing slice.
type Ring[T any] struct {
	buf    []T
	start  int
	length int
}

// NewRing returns an empty ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest item is overwritten and
// returned with evicted == true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.length < len(r.buf) {
		r.buf[(r.start+r.length)%len(r.buf)] = v
		r.length++
		return old, false
	}
	old = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return old, true
}

// Get returns the item at index, 0 being the oldest.
func (r *Ring[T]) Get(index int) (T, bool) {
	var zero T
	if index < 0 || index >= r.length {
		return zero, false
	}
	return r.buf[(r.start+index)%len(r.buf)], true
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int { return r.length }

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Slice copies the items out, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.length)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
