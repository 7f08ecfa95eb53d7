package protocol

import (
	"sync"
	"testing"
)

func TestMoreRecent(t *testing.T) {
	testCases := []struct {
		name string
		a, b uint16
		want bool
	}{
		{"forward", 100, 50, true},
		{"backward", 50, 100, false},
		{"wrapped past max", 10, 65530, true},
		{"behind wrap", 65530, 10, false},
		{"equal", 7, 7, false},
		{"half range forward", 32767, 0, true},
		{"just over half", 32768, 0, false},
		{"max vs zero", 65535, 0, false},
		{"zero vs max", 0, 65535, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MoreRecent(tc.a, tc.b); got != tc.want {
				t.Errorf("MoreRecent(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

// TestMoreRecentTotal checks that exactly one of any two distinct values is
// more recent than the other, across the whole 8-bit range.
func TestMoreRecentTotal(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			x, y := MoreRecent(uint8(a), uint8(b)), MoreRecent(uint8(b), uint8(a))
			if a == b {
				if x || y {
					t.Fatalf("equal values %d reported as more recent", a)
				}
				continue
			}
			if x == y {
				t.Fatalf("MoreRecent(%d, %d) = %v and MoreRecent(%d, %d) = %v", a, b, x, b, a, y)
			}
		}
	}
}

func TestMoreRecentWidths(t *testing.T) {
	if !MoreRecent(uint32(3), uint32(0xFFFFFFF0)) {
		t.Error("uint32 wraparound not detected")
	}
	if !MoreRecent(uint64(1), uint64(0)) {
		t.Error("uint64 forward progress not detected")
	}
}

func TestSeqDiff(t *testing.T) {
	if d := SeqDiff(5, 65534); d != 7 {
		t.Errorf("SeqDiff(5, 65534) = %d, want 7", d)
	}
	if d := SeqDiff(65534, 5); d != -7 {
		t.Errorf("SeqDiff(65534, 5) = %d, want -7", d)
	}
}

func TestSeqGenWraps(t *testing.T) {
	s := NewSeqGen(65534)
	for _, want := range []uint16{65534, 65535, 0, 1} {
		if got := s.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
	if s.Peek() != 2 {
		t.Errorf("Peek() = %d, want 2", s.Peek())
	}
}

func TestSeqGenConcurrent(t *testing.T) {
	s := NewSeqGen(0)
	seen := make([]bool, 1000)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				n := s.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for i, ok := range seen {
		if !ok {
			t.Fatalf("sequence %d never handed out", i)
		}
	}
}
