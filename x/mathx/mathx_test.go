package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(uint16(1500), 0, 1000); got != 1000 {
		t.Errorf("Clamp high = %d", got)
	}
	if got := Clamp(-3, 0, 10); got != 0 {
		t.Errorf("Clamp low = %d", got)
	}
	if got := Clamp(5, 10, 0); got != 5 {
		t.Errorf("Clamp swapped bounds = %d", got)
	}
	if got := Max(3*time.Millisecond, 10*time.Millisecond); got != 10*time.Millisecond {
		t.Errorf("Max = %v", got)
	}
}

func TestCeilDiv(t *testing.T) {
	for _, tt := range []struct{ a, b, want uint32 }{{0, 4, 0}, {1, 4, 1}, {8, 4, 2}, {9, 4, 3}, {9, 0, 0}} {
		if got := CeilDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("CeilDiv(%d,%d) = %d", tt.a, tt.b, got)
		}
	}
}
