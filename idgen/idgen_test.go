package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestNanoID(t *testing.T) {
	for _, length := range []int{1, 8, 12, 100} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
		if strings.Trim(id, base36) != "" {
			t.Fatalf("NanoID(%d): %q has characters outside base36", length, id)
		}
	}
}

func TestNanoID_Uniqueness(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]bool, 1000)
	for i := range 1000 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = true
	}
}

// Every symbol should show up over a large sample; a biased or truncated
// alphabet would leave some out.
func TestNanoID_CoversAlphabet(t *testing.T) {
	sample := NanoID(4000)()
	for _, c := range base36 {
		if !strings.ContainsRune(sample, c) {
			t.Errorf("symbol %q never drawn", c)
		}
	}
}

func TestUUIDv7(t *testing.T) {
	gen := UUIDv7()
	a, b := gen(), gen()
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("not a UUID: %v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("version %d, want 7", u.Version())
	}
	if a == b {
		t.Fatal("two calls returned the same id")
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("box_", NanoID(8))()
	if !strings.HasPrefix(id, "box_") || len(id) != 12 {
		t.Fatalf("got %q", id)
	}
}

func TestSequence(t *testing.T) {
	gen := Prefixed("req_", Sequence())
	if a, b := gen(), gen(); a != "req_1" || b != "req_2" {
		t.Fatalf("got %q, %q", a, b)
	}

	seq := Sequence()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := seq()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 50 {
		t.Fatalf("concurrent ids collided: %d distinct", len(seen))
	}
}

func TestDefault_IsUUIDv7(t *testing.T) {
	u, err := uuid.Parse(New())
	if err != nil || u.Version() != 7 {
		t.Fatalf("New: %v %v", u, err)
	}
}
