package cid_test

import (
	"testing"

	"github.com/brandfoss/nvmescsi/engine/cid"
)

func TestAllocNeverDuplicates(t *testing.T) {
	tab := cid.NewTable(8)
	seen := make(map[uint16]bool)
	for i := 0; i < 8; i++ {
		cids, err := tab.Alloc(i, 1)
		if err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
		for _, c := range cids {
			if seen[c] {
				t.Fatalf("duplicate CID %d", c)
			}
			seen[c] = true
		}
	}
	if _, err := tab.Alloc(99, 1); err != cid.ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestAllocPartialFailureRollsBack(t *testing.T) {
	tab := cid.NewTable(4)
	if _, err := tab.Alloc("a", 3); err != nil {
		t.Fatalf("Alloc 3: %v", err)
	}
	// One slot is left; a request for two takes it, then fails on the
	// second and must roll the first back, leaving occupancy unchanged.
	before := tab.OccupiedCount()
	if _, err := tab.Alloc("b", 2); err != cid.ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if tab.OccupiedCount() != before {
		t.Fatalf("occupancy changed after failed alloc: %d -> %d", before, tab.OccupiedCount())
	}
}

func TestCompleteDecrementsRefcountAndNotifiesOnce(t *testing.T) {
	tab := cid.NewTable(8)
	cids, err := tab.Alloc("req", 3)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	var released []int
	release := func(idx int) { released = append(released, idx) }

	for _, c := range cids[:2] {
		tab.AttachPRP(c, int(c)+10)
		req, err := tab.Complete(c, release)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if req != nil {
			t.Fatalf("notified before refcount reached zero")
		}
	}

	last := cids[2]
	tab.AttachPRP(last, 99)
	req, err := tab.Complete(last, release)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if req != "req" {
		t.Fatalf("expected final completion to return request, got %v", req)
	}
	if len(released) != 3 {
		t.Fatalf("expected 3 PRP pages released, got %d", len(released))
	}
}

func TestCompleteOnFreeCIDIsSpuriousAndNoOp(t *testing.T) {
	tab := cid.NewTable(8)
	before := tab.OccupiedCount()
	_, err := tab.Complete(3, func(int) {})
	if err != cid.ErrSpurious {
		t.Fatalf("expected ErrSpurious, got %v", err)
	}
	if tab.OccupiedCount() != before {
		t.Fatalf("spurious completion mutated occupancy")
	}
}

func TestOccupiedCountMatchesInFlight(t *testing.T) {
	tab := cid.NewTable(16)
	a, _ := tab.Alloc("a", 3)
	b, _ := tab.Alloc("b", 2)
	if tab.OccupiedCount() != 5 {
		t.Fatalf("expected 5 occupied, got %d", tab.OccupiedCount())
	}
	tab.Complete(a[0], func(int) {})
	tab.Complete(b[0], func(int) {})
	if tab.OccupiedCount() != 3 {
		t.Fatalf("expected 3 occupied after two completions, got %d", tab.OccupiedCount())
	}
}
