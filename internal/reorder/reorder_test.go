package reorder

import (
	"testing"
)

func collect(results ...[]Event[string]) []int64 {
	var out []int64
	for _, batch := range results {
		for _, ev := range batch {
			out = append(out, ev.Ts)
		}
	}
	return out
}

func TestResequencesWithinWindow(t *testing.T) {
	b := NewBuffer[string](100, 16)

	var emitted []int64
	submit := func(ts int64) Result {
		res, released := b.Submit("BTCUSDT", ts, "payload")
		emitted = append(emitted, collect(released)...)
		return res
	}

	if res := submit(100); res != Emitted {
		t.Fatalf("submit(100) = %v, want Emitted", res)
	}
	if res := submit(300); res != Buffered {
		t.Fatalf("submit(300) = %v, want Buffered", res)
	}
	if res := submit(200); res != Emitted {
		t.Fatalf("submit(200) = %v, want Emitted", res)
	}
	if res := submit(250); res != Emitted {
		t.Fatalf("submit(250) = %v, want Emitted", res)
	}
	// The next in-order arrival releases the parked 300.
	if res := submit(400); res != Emitted {
		t.Fatalf("submit(400) = %v, want Emitted", res)
	}

	want := []int64{100, 200, 250, 300, 400}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}

	// Older than last_released - window: dropped, not emitted.
	res, released := b.Submit("BTCUSDT", 50, "stale")
	if res != Dropped {
		t.Fatalf("submit(50) = %v, want Dropped", res)
	}
	if len(released) != 0 {
		t.Fatalf("stale submit released %v", released)
	}
	dropped, _ := b.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestNeverEmitsBehindCursor(t *testing.T) {
	b := NewBuffer[string](100, 8)

	var emitted []int64
	submit := func(ts int64) {
		_, released := b.Submit("BTCUSDT", ts, "payload")
		emitted = append(emitted, collect(released)...)
	}

	submit(100)
	submit(180)
	// Late but within the window: parked behind the release cursor.
	submit(150)
	// The drain triggered by a newer arrival must drop the parked 150, not
	// deliver it after 180.
	submit(200)

	want := []int64{100, 180, 200}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := 1; i < len(emitted); i++ {
		if emitted[i] < emitted[i-1] {
			t.Fatalf("out-of-order emission: %v", emitted)
		}
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}

	dropped, _ := b.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestCapacityEviction(t *testing.T) {
	b := NewBuffer[string](10, 3)

	b.Submit("ETHUSDT", 1000, "init")
	for _, ts := range []int64{5000, 4000, 3000, 2000} {
		if res, _ := b.Submit("ETHUSDT", ts, "x"); res != Buffered {
			t.Fatalf("submit(%d) = %v, want Buffered", ts, res)
		}
	}

	if n := b.Len("ETHUSDT"); n > 3 {
		t.Errorf("buffer size %d exceeds capacity 3", n)
	}
	if _, evicted := b.Stats(); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
}

func TestFirstSubmissionInitializes(t *testing.T) {
	b := NewBuffer[string](100, 8)

	// No synthetic backlog: the very first timestamp is accepted as-is,
	// however old it looks.
	res, released := b.Submit("XRPUSDT", 5, "first")
	if res != Emitted || len(released) != 1 {
		t.Fatalf("first submit = %v %v, want immediate emit", res, released)
	}

	// Ordered follow-ups emit immediately.
	if res, _ := b.Submit("XRPUSDT", 50, "second"); res != Emitted {
		t.Fatalf("in-order submit = %v, want Emitted", res)
	}
}

func TestSymbolsIndependent(t *testing.T) {
	b := NewBuffer[string](100, 8)

	b.Submit("AAA", 1000, "a")
	res, _ := b.Submit("BBB", 10, "b")
	if res != Emitted {
		t.Fatalf("fresh symbol submit = %v, want Emitted", res)
	}
}
