// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sampling

import "testing"

func TestReservoir_FillsToCapacity(t *testing.T) {
	r := NewReservoir(10)

	for i := 0; i < 10; i++ {
		r.Add(float64(i))
	}

	if r.Len() != 10 {
		t.Fatalf("expected 10 values, got %d", r.Len())
	}
	if r.Seen() != 10 {
		t.Errorf("expected 10 seen, got %d", r.Seen())
	}

	// Below capacity, every value is retained in insertion order.
	values := r.Values()
	for i, v := range values {
		if v != float64(i) {
			t.Errorf("values[%d] = %v, want %v", i, v, float64(i))
		}
	}
}

func TestReservoir_BoundedBeyondCapacity(t *testing.T) {
	r := NewReservoir(100)

	for i := 0; i < 10000; i++ {
		r.Add(float64(i))
	}

	if r.Len() != 100 {
		t.Fatalf("expected 100 values, got %d", r.Len())
	}
	if r.Seen() != 10000 {
		t.Errorf("expected 10000 seen, got %d", r.Seen())
	}

	// Every retained value must come from the offered stream.
	for _, v := range r.Values() {
		if v < 0 || v >= 10000 {
			t.Errorf("unexpected value %v", v)
		}
	}
}

func TestReservoir_Replacement(t *testing.T) {
	r := NewReservoir(50)

	// Offer a large stream of a distinct second phase; with 10x the
	// capacity offered after filling, replacement must have occurred.
	for i := 0; i < 50; i++ {
		r.Add(0)
	}
	for i := 0; i < 5000; i++ {
		r.Add(1)
	}

	replaced := 0
	for _, v := range r.Values() {
		if v == 1 {
			replaced++
		}
	}
	if replaced == 0 {
		t.Error("expected at least one replaced slot after 5000 offers")
	}
}

func TestReservoir_DefaultCapacity(t *testing.T) {
	r := NewReservoir(0)
	if r.Capacity() != 1000 {
		t.Errorf("expected default capacity 1000, got %d", r.Capacity())
	}
}

func TestReservoir_ValuesIsCopy(t *testing.T) {
	r := NewReservoir(4)
	r.Add(1)
	r.Add(2)

	values := r.Values()
	values[0] = 99

	if r.Values()[0] != 1 {
		t.Error("mutating the returned slice must not affect the reservoir")
	}
}
