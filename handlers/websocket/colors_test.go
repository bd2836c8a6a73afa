package websocket

import "testing"

func TestColorAllocation_Deterministic(t *testing.T) {
	a := NewColorAllocator()
	b := NewColorAllocator()

	for i := 0; i < 25; i++ {
		got, want := a.Next(), b.Next()
		if got != want {
			t.Fatalf("allocation %d diverged: got %s, want %s", i+1, got, want)
		}
	}
}

func TestColorAllocation_WrapsAfterPalette(t *testing.T) {
	a := NewColorAllocator()

	first := a.Next()
	for i := 0; i < len(userColors)-1; i++ {
		a.Next()
	}

	eleventh := a.Next()
	if eleventh != first {
		t.Errorf("11th allocation mismatch: got %s, want %s", eleventh, first)
	}
}

func TestColorAllocation_SharedCursorAcrossCallers(t *testing.T) {
	a := NewColorAllocator()

	// The cursor is process-wide, not per room: consecutive calls never
	// repeat until the palette wraps.
	seen := make(map[string]bool)
	for i := 0; i < len(userColors); i++ {
		color := a.Next()
		if seen[color] {
			t.Fatalf("color %s repeated before the palette wrapped", color)
		}
		seen[color] = true
	}
	if len(seen) != len(userColors) {
		t.Errorf("distinct colors: got %d, want %d", len(seen), len(userColors))
	}
}
