package reorder

import (
	"container/heap"
	"sync"

	"marketfeed/internal/metrics"
)

// Result classifies the outcome of one Submit call.
type Result int

const (
	// Emitted means the submitted event was released immediately.
	Emitted Result = iota
	// Buffered means the event was parked in the symbol's heap.
	Buffered
	// Dropped means the event was older than the reorder window.
	Dropped
)

// Event is one (timestamp, payload) pair released by the buffer.
type Event[T any] struct {
	Ts      int64
	Payload T
}

type entryHeap[T any] []Event[T]

func (h entryHeap[T]) Len() int            { return len(h) }
func (h entryHeap[T]) Less(i, j int) bool  { return h[i].Ts < h[j].Ts }
func (h entryHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap[T]) Push(x interface{}) { *h = append(*h, x.(Event[T])) }
func (h *entryHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type symbolState[T any] struct {
	initialized  bool
	lastReleased int64
	pending      entryHeap[T]
}

// Buffer re-sequences per-symbol events that arrive slightly out of order.
// Events later than the window are dropped rather than re-sequenced, and the
// per-symbol heap is capped, so both memory and added latency stay bounded.
// It is not a timer-driven resequencer: parked events are released only when
// a newer arrival proves the stream has moved past them.
type Buffer[T any] struct {
	mu       sync.Mutex
	window   int64 // max tolerated lateness, same unit as timestamps
	capacity int
	symbols  map[string]*symbolState[T]

	dropped int64
	evicted int64
}

// NewBuffer creates a reorder buffer with the given lateness window
// (timestamp units, typically epoch ms) and per-symbol heap capacity.
func NewBuffer[T any](window int64, capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		window:   window,
		capacity: capacity,
		symbols:  make(map[string]*symbolState[T]),
	}
}

// Submit offers one event. The returned slice holds every event released by
// this call in timestamp order; when the result is Emitted it ends with the
// submitted event itself. A first submission for a symbol initializes its
// release cursor with no synthetic backlog.
func (b *Buffer[T]) Submit(symbol string, ts int64, payload T) (Result, []Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.symbols[symbol]
	if !ok {
		st = &symbolState[T]{}
		b.symbols[symbol] = st
	}

	ev := Event[T]{Ts: ts, Payload: payload}

	if !st.initialized {
		st.initialized = true
		st.lastReleased = ts
		return Emitted, []Event[T]{ev}
	}

	// A newer arrival proves everything parked before it can be released.
	released := b.drainLocked(symbol, st, ts)

	if ts < st.lastReleased-b.window {
		b.dropped++
		metrics.IncrementReorderDropped(symbol)
		return Dropped, released
	}

	// In-order within the expected cadence: the common case.
	if ts >= st.lastReleased && ts-st.lastReleased <= b.window {
		st.lastReleased = ts
		return Emitted, append(released, ev)
	}

	// Either late but within the window, or in-order with a gap wide
	// enough to suggest reordering in flight. Park it.
	heap.Push(&st.pending, ev)
	if st.pending.Len() > b.capacity {
		heap.Pop(&st.pending)
		b.evicted++
		metrics.IncrementReorderEvicted(symbol)
	}
	return Buffered, released
}

// drainLocked releases parked events older than upto. Only events at or
// ahead of the release cursor may be emitted; anything behind it would leave
// the buffer out of timestamp order, so it is dropped instead.
func (b *Buffer[T]) drainLocked(symbol string, st *symbolState[T], upto int64) []Event[T] {
	var released []Event[T]
	for st.pending.Len() > 0 && st.pending[0].Ts < upto {
		ev := heap.Pop(&st.pending).(Event[T])
		if ev.Ts < st.lastReleased {
			b.dropped++
			metrics.IncrementReorderDropped(symbol)
			continue
		}
		released = append(released, ev)
		st.lastReleased = ev.Ts
	}
	return released
}

// Len reports how many events are parked for a symbol.
func (b *Buffer[T]) Len(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.symbols[symbol]; ok {
		return st.pending.Len()
	}
	return 0
}

// Stats reports cumulative drop and eviction counts.
func (b *Buffer[T]) Stats() (dropped, evicted int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped, b.evicted
}
