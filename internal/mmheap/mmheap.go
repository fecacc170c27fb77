// Package mmheap provides a generic binary min-heap used by the sketch
// toolbox's agglomerative clustering to repeatedly pull the closest pair
// of user-bin clusters off a priority queue. Unlike a plain Insert/Extract
// queue, clustering needs to invalidate entries mid-run as clusters merge,
// so the heap tracks each item's current slot and exposes RemoveAt/Fix
// for direct, pointer-addressed mutation instead of requiring callers to
// scan for stale entries themselves.
package mmheap

// Comparable is the ordering constraint: T knows how to compare itself
// against another *T.
type Comparable[T any] interface {
	Less(other *T) bool
}

// Heap is a min-heap over *T.
type Heap[T Comparable[T]] struct {
	items []*T
	slot  map[*T]int
}

// New returns an empty heap.
func New[T Comparable[T]]() *Heap[T] {
	return &Heap[T]{slot: map[*T]int{}}
}

// Len returns the number of elements currently in the heap.
func (h *Heap[T]) Len() int { return len(h.items) }

// Size returns the number of elements in the heap.
func (h *Heap[T]) Size() int { return len(h.items) }

// Insert adds item to the heap.
func (h *Heap[T]) Insert(item *T) {
	h.items = append(h.items, item)
	h.slot[item] = len(h.items) - 1
	h.siftUp(len(h.items) - 1)
}

// Extract removes and returns the minimum element.
func (h *Heap[T]) Extract() (*T, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	top := h.items[0]
	h.removeSlot(0)
	return top, true
}

// Peek returns the minimum element without removing it.
func (h *Heap[T]) Peek() (*T, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// RemoveAt drops item from the heap, wherever it currently sits, and
// restores the heap property. Reports whether item was present.
func (h *Heap[T]) RemoveAt(item *T) bool {
	i, ok := h.slot[item]
	if !ok {
		return false
	}
	h.removeSlot(i)
	return true
}

// Fix restores the heap property for item after the caller has mutated
// *item's key in place.
func (h *Heap[T]) Fix(item *T) {
	i, ok := h.slot[item]
	if !ok {
		return
	}
	if !h.siftUp(i) {
		h.siftDown(i)
	}
}

// removeSlot deletes the element at index i: the last element fills the
// hole and is resettled in whichever direction the heap property
// demands.
func (h *Heap[T]) removeSlot(i int) {
	last := len(h.items) - 1
	delete(h.slot, h.items[i])
	if i != last {
		h.items[i] = h.items[last]
		h.slot[h.items[i]] = i
	}
	h.items = h.items[:last]
	if i < len(h.items) {
		if !h.siftUp(i) {
			h.siftDown(i)
		}
	}
}

// siftUp moves the element at index i toward the root while it is
// smaller than its parent. Reports whether it moved.
func (h *Heap[T]) siftUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !(*h.items[i]).Less(h.items[parent]) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

// siftDown moves the element at index i toward the leaves while it is
// larger than the smaller of its children.
func (h *Heap[T]) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		if l := 2*i + 1; l < n && (*h.items[l]).Less(h.items[smallest]) {
			smallest = l
		}
		if r := 2*i + 2; r < n && (*h.items[r]).Less(h.items[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *Heap[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.slot[h.items[i]] = i
	h.slot[h.items[j]] = j
}
