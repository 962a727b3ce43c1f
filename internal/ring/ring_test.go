package ring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPushEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		evicted := b.Push(i)
		if want := i > 3; evicted != want {
			t.Fatalf("push %d: evicted=%v, want %v", i, evicted, want)
		}
		if b.Len() > b.Cap() {
			t.Fatalf("len %d exceeds cap %d", b.Len(), b.Cap())
		}
	}
	if diff := cmp.Diff([]int{3, 4, 5}, b.Slice()); diff != "" {
		t.Fatalf("unexpected contents (-want +got):\n%s", diff)
	}
	if v, ok := b.Newest(); !ok || v != 5 {
		t.Fatalf("newest = %d,%v want 5,true", v, ok)
	}
	if v, ok := b.At(0); !ok || v != 3 {
		t.Fatalf("oldest = %d,%v want 3,true", v, ok)
	}
}

func TestResetKeepsCapacity(t *testing.T) {
	b := New[string](2)
	b.Push("a")
	b.Push("b")
	b.Push("c")
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", b.Len())
	}
	if len(b.Slice()) != 0 {
		t.Fatalf("expected empty slice")
	}
	if _, ok := b.Newest(); ok {
		t.Fatalf("newest on empty buffer should report false")
	}
	b.Push("d")
	if diff := cmp.Diff([]string{"d"}, b.Slice()); diff != "" {
		t.Fatalf("unexpected contents after reset (-want +got):\n%s", diff)
	}
	if b.Cap() != 2 {
		t.Fatalf("cap changed to %d", b.Cap())
	}
}

func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	if b.Cap() != 1 {
		t.Fatalf("expected cap 1, got %d", b.Cap())
	}
	b.Push(1)
	b.Push(2)
	if diff := cmp.Diff([]int{2}, b.Slice()); diff != "" {
		t.Fatalf("unexpected contents (-want +got):\n%s", diff)
	}
}

func TestSliceIsACopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	s := b.Slice()
	s[0] = 99
	if v, _ := b.At(0); v != 1 {
		t.Fatalf("buffer mutated through slice: %d", v)
	}
}
