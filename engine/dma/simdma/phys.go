package simdma

import "sync"

// physTable simulates a physical address space for mmap'd regions
// that only have process-virtual addresses. Real hardware drivers get
// physical addresses from the kernel's DMA mapping API; here we hand
// out a disjoint range per region and translate both ways, so PRP
// arithmetic in the engine exercises real address math instead of
// reusing Go pointers as "physical" addresses.
var physTable = newPhysAllocator()

type physRegion struct {
	phys uint64
	virt []byte
}

type physAllocator struct {
	mu      sync.Mutex
	next    uint64
	regions []physRegion
}

func newPhysAllocator() *physAllocator {
	return &physAllocator{next: 0x1_0000_0000} // start above 4 GiB, clearly not a Go pointer
}

func (a *physAllocator) assign(virt []byte) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	base := a.next
	a.next += uint64(len(virt)) + 0x1000 // gap between regions catches off-by-one phys math
	a.regions = append(a.regions, physRegion{phys: base, virt: virt})
	return base
}

func (a *physAllocator) release(virt []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.regions {
		if &r.virt[0] == &virt[0] {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			return
		}
	}
}

// translate returns the host-accessible slice of length n starting at
// physical address phys, or nil if phys falls outside any known
// region.
func (a *physAllocator) translate(phys uint64, n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.regions {
		if phys >= r.phys && phys+uint64(n) <= r.phys+uint64(len(r.virt)) {
			off := phys - r.phys
			return r.virt[off : off+uint64(n)]
		}
	}
	return nil
}
