package prp_test

import (
	"testing"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/prp"
)

// fakeBackend hands out sequential, distinguishable physical
// addresses without touching real memory, enough to exercise the
// pool/builder logic in isolation.
type fakeBackend struct{ next uint64 }

func (f *fakeBackend) AllocPages(n int) (dma.Pages, error) {
	virt := make([]byte, n*dma.PageSize)
	phys := f.next
	f.next += uint64(n) * dma.PageSize
	return dma.Pages{Virt: virt, Phys: phys, Count: n}, nil
}
func (f *fakeBackend) FreePages(p dma.Pages) error   { return nil }
func (f *fakeBackend) RingDoorbell(o uint32, v uint32) {}
func (f *fakeBackend) FlushForDevice(p []byte)        {}
func (f *fakeBackend) FlushForCPU(p []byte)           {}

func newPool(t *testing.T, n int) *prp.Pool {
	t.Helper()
	pool, err := prp.NewPool(&fakeBackend{next: 0x2000}, n)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

func frags(phys ...uint64) []prp.Fragment {
	out := make([]prp.Fragment, len(phys))
	for i, p := range phys {
		out[i] = prp.Fragment{Phys: p, Len: dma.PageSize}
	}
	return out
}

func TestBuildSinglePage(t *testing.T) {
	pool := newPool(t, prp.DefaultPoolPages)
	res, err := prp.Build(pool, frags(0x1000))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.PRP1 != 0x1000 || res.PRP2 != 0 || len(res.ListPages) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if pool.FreeCount() != prp.DefaultPoolPages {
		t.Fatalf("pool should be untouched, free=%d", pool.FreeCount())
	}
}

func TestBuildTwoPages(t *testing.T) {
	pool := newPool(t, prp.DefaultPoolPages)
	res, err := prp.Build(pool, frags(0x1000, 0x2000))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.PRP1 != 0x1000 || res.PRP2 != 0x2000 || len(res.ListPages) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestBuildChainedSinglePage(t *testing.T) {
	pool := newPool(t, prp.DefaultPoolPages)
	// PRP1 + 31 more pages = 32 total fragments, matching spec.md's
	// scenario 3 (128 KiB write spanning 32 pages): 31 list entries
	// fit comfortably within one page (E-1 = 511).
	fs := make([]uint64, 32)
	for i := range fs {
		fs[i] = uint64(i+1) * dma.PageSize
	}
	res, err := prp.Build(pool, frags(fs...))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.ListPages) != 1 {
		t.Fatalf("expected exactly one list page, got %d", len(res.ListPages))
	}
	if res.PRP2 != pool.PhysAddr(res.ListPages[0]) {
		t.Fatalf("PRP2 should point at the allocated list page")
	}
}

func TestBuildChainedTwoPages(t *testing.T) {
	pool := newPool(t, prp.DefaultPoolPages)
	// A final list page holds E = 512 entries; a chained page holds
	// E-1 = 511 plus the chain pointer. E+1 entries beyond PRP1 force a
	// second, chained page.
	n := prp.EntriesPerPage + 2 // first fragment (PRP1) + E+1 rest entries
	fs := make([]uint64, n)
	for i := range fs {
		fs[i] = uint64(i+1) * dma.PageSize
	}
	res, err := prp.Build(pool, frags(fs...))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.ListPages) != 2 {
		t.Fatalf("expected two chained list pages, got %d", len(res.ListPages))
	}
}

func TestBuildEmptyIsError(t *testing.T) {
	pool := newPool(t, prp.DefaultPoolPages)
	if _, err := prp.Build(pool, nil); err != prp.ErrSGTranslation {
		t.Fatalf("expected ErrSGTranslation, got %v", err)
	}
}

func TestPoolAllocFreeRoundTrip(t *testing.T) {
	pool := newPool(t, 4)
	var got []int
	for i := 0; i < 4; i++ {
		idx, err := pool.Alloc()
		if err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
		got = append(got, idx)
	}
	if _, err := pool.Alloc(); err != prp.ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	for _, idx := range got {
		pool.Free(idx)
	}
	if pool.FreeCount() != 4 {
		t.Fatalf("expected all pages free, got %d", pool.FreeCount())
	}
}
