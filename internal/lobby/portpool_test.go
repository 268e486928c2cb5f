package lobby

import "testing"

func TestPortPoolAcquireLowestFirst(t *testing.T) {
	p := NewPortPool(9000, 9002)

	got, ok := p.Acquire()
	if !ok || got != 9000 {
		t.Fatalf("Acquire = %d, %v, want 9000, true", got, ok)
	}
	got, ok = p.Acquire()
	if !ok || got != 9001 {
		t.Fatalf("Acquire = %d, %v, want 9001, true", got, ok)
	}

	p.Release(9000)
	got, ok = p.Acquire()
	if !ok || got != 9000 {
		t.Fatalf("Acquire after release = %d, %v, want 9000, true", got, ok)
	}
}

func TestPortPoolExhaustion(t *testing.T) {
	p := NewPortPool(9000, 9000)

	if _, ok := p.Acquire(); !ok {
		t.Fatalf("first Acquire failed")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatalf("Acquire succeeded past capacity")
	}
}

func TestPortPoolReleaseIsIdempotent(t *testing.T) {
	p := NewPortPool(9000, 9001)

	p.Release(9000) // never acquired; must not panic or corrupt state
	p.Release(99999) // out of range; must be ignored

	got, ok := p.Acquire()
	if !ok || got != 9000 {
		t.Fatalf("Acquire = %d, %v, want 9000, true", got, ok)
	}
}
