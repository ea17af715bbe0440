/*
   NVMe SCSI bridge - PRP page pool.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package prp implements the PRP page pool (section 4.1) and PRP
// builder (section 4.5): a fixed pool of DMA-addressable pages used
// to hold multi-page PRP lists, and the algorithm that walks a
// scatter-gather list to populate PRP1/PRP2/a chained PRP list for
// one sub-command.
package prp

import (
	"errors"
	"math/bits"
	"sync"

	"github.com/brandfoss/nvmescsi/engine/dma"
)

// DefaultPoolPages is the reference pool size from spec.md section 4.1.
const DefaultPoolPages = 64

// ErrPoolExhausted is returned by Alloc when no page is free.
var ErrPoolExhausted = errors.New("prp: pool exhausted")

// Pool is a fixed array of page-sized, physically contiguous,
// uncached pages with a bitmap allocator (1 = free), matching the
// teacher's fixed-size array + occupancy-bitmap idiom used for
// sys_channel's subchannel table.
type Pool struct {
	mu     sync.Mutex
	pages  dma.Pages
	free   []uint64 // bitmap words, 1 = free
	backend dma.Backend
}

// NewPool allocates n pages from backend and returns a Pool managing
// them. n must be a positive multiple of 64 or the final bitmap word
// is only partially usable (unused high bits start and stay zero, so
// they are simply never handed out).
func NewPool(backend dma.Backend, n int) (*Pool, error) {
	pages, err := backend.AllocPages(n)
	if err != nil {
		return nil, err
	}
	words := (n + 63) / 64
	free := make([]uint64, words)
	for i := range free {
		free[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 {
		free[words-1] = (uint64(1) << uint(rem)) - 1
	}
	return &Pool{pages: pages, free: free, backend: backend}, nil
}

// Size returns the number of pages managed by the pool.
func (p *Pool) Size() int { return p.pages.Count }

// Alloc finds the first free page, marks it owned, and returns its
// index. O(Size/64).
func (p *Pool) Alloc() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for w, word := range p.free {
		if word == 0 {
			continue
		}
		bit := bits.TrailingZeros64(word)
		idx := w*64 + bit
		if idx >= p.pages.Count {
			continue
		}
		p.free[w] &^= uint64(1) << uint(bit)
		return idx, nil
	}
	return 0, ErrPoolExhausted
}

// Free marks index as available again. Double-free is a programming
// error and is not detected, per spec.md section 4.1.
func (p *Pool) Free(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[index/64] |= uint64(1) << uint(index%64)
}

// FreeCount returns the number of pages currently unallocated, used
// by tests asserting the pool-bitmap invariant from spec.md section 8.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for w, word := range p.free {
		for bit := 0; bit < 64; bit++ {
			idx := w*64 + bit
			if idx >= p.pages.Count {
				break
			}
			if word&(uint64(1)<<uint(bit)) != 0 {
				n++
			}
		}
	}
	return n
}

// Pages returns the pool's backing DMA pages, for callers that need
// to release the whole allocation (e.g. Controller.Shutdown).
func (p *Pool) Pages() dma.Pages { return p.pages }

// Page returns the host-accessible bytes of page i.
func (p *Pool) Page(i int) []byte { return p.pages.Page(i) }

// PhysAddr returns the physical address of page i.
func (p *Pool) PhysAddr(i int) uint64 { return p.pages.PhysAddr(i) }

// FlushForDevice pushes a list page's contents to the controller's
// view, as required on non-coherent platforms after populating it.
func (p *Pool) FlushForDevice(i int) { p.backend.FlushForDevice(p.Page(i)) }
