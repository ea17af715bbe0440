/*
   NVMe SCSI bridge - simulated controller backend.

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

// Package simdma implements dma.Backend entirely in host memory, the
// way the teacher's emu/memory package stands in for a bus the
// program does not actually own. Pages come from anonymous mmap
// regions so physical-address arithmetic is simulated through a
// stable offset table rather than faked with slice pointers; doorbell
// writes to a submission queue start a goroutine that decodes submitted
// commands, runs a minimal compliant device model, and posts
// completions back with the correct phase bit.
package simdma

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

// Backend is a single simulated NVMe controller. One Backend serves
// one admin queue and one I/O queue, matching spec.md's Non-goal of
// exactly one queue pair of each kind.
type Backend struct {
	mu      sync.Mutex
	regions [][]byte // every mmap'd region, for Munmap at Close

	ring map[uint32]*ringState // doorbell offset -> owning ring

	NSZE      uint64
	BlockSize uint32
	MDTS      uint8
}

// ringState tracks one registered SQ/CQ pair so RingDoorbell can
// locate and drain it.
type ringState struct {
	mu       sync.Mutex
	sq, cq   dma.Pages
	sqSize   int
	cqSize   int
	sqHead   int
	cqTail   int
	phase    bool
	sqDB     uint32
	cqDB     uint32
	admin    bool
	backend  *Backend
}

// New returns a simulated backend reporting the given namespace size,
// logical block size, and MDTS (in the NVMe 2^n-pages encoding).
func New(nszeBlocks uint64, blockSize uint32, mdts uint8) *Backend {
	return &Backend{
		ring:      make(map[uint32]*ringState),
		NSZE:      nszeBlocks,
		BlockSize: blockSize,
		MDTS:      mdts,
	}
}

// AllocPages implements dma.Backend using anonymous, locked mmap
// regions as page-aligned, non-pageable backing storage.
func (b *Backend) AllocPages(n int) (dma.Pages, error) {
	size := n * dma.PageSize
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return dma.Pages{}, err
	}
	_ = unix.Mlock(mem)

	b.mu.Lock()
	b.regions = append(b.regions, mem)
	b.mu.Unlock()

	phys := physTable.assign(mem)
	return dma.Pages{Virt: mem, Phys: phys, Count: n}, nil
}

// FreePages implements dma.Backend.
func (b *Backend) FreePages(p dma.Pages) error {
	physTable.release(p.Virt)
	return unix.Munmap(p.Virt)
}

// FlushForDevice and FlushForCPU are no-ops: the simulated backend is
// coherent by construction, the same simplification the teacher's
// in-memory emu/memory package makes for a bus it does not own.
func (b *Backend) FlushForDevice(p []byte) {}
func (b *Backend) FlushForCPU(p []byte)    {}

// RegisterQueue tells the backend the memory layout behind a
// doorbell pair so it can simulate controller-side processing. admin
// selects the admin command-set device model versus the I/O one.
func (b *Backend) RegisterQueue(sqDB, cqDB uint32, sq, cq dma.Pages, sqSize, cqSize int, admin bool) {
	rs := &ringState{sq: sq, cq: cq, sqSize: sqSize, cqSize: cqSize, phase: false, sqDB: sqDB, cqDB: cqDB, admin: admin, backend: b}
	b.mu.Lock()
	b.ring[sqDB] = rs
	b.mu.Unlock()
}

// UnregisterQueue removes a previously registered ring, called during
// controller teardown after DELETE_SQ/DELETE_CQ complete.
func (b *Backend) UnregisterQueue(sqDB uint32) {
	b.mu.Lock()
	delete(b.ring, sqDB)
	b.mu.Unlock()
}

// RingDoorbell implements dma.Backend. An SQ doorbell write spawns a
// drain pass on its own goroutine, standing in for the controller's
// independent execution thread (spec.md section 5's second thread of
// control). A CQ doorbell write only records host progress; the
// simulated controller has no backpressure to apply from it.
func (b *Backend) RingDoorbell(offset uint32, value uint32) {
	b.mu.Lock()
	rs, ok := b.ring[offset]
	b.mu.Unlock()
	if !ok {
		return
	}
	go rs.drain(int(value))
}

// commandSlot returns the slot in sq holding queue position i.
func (rs *ringState) commandSlot(i int) []byte {
	return rs.sq.Virt[i*wire.CommandSize : (i+1)*wire.CommandSize]
}

func (rs *ringState) completionSlot(i int) []byte {
	return rs.cq.Virt[i*wire.CompletionSize : (i+1)*wire.CompletionSize]
}

// drain processes every SQ entry between the last observed head and
// newTail, posting one completion per command.
func (rs *ringState) drain(newTail int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for i := rs.sqHead; i != newTail; i = (i + 1) % rs.sqSize {
		cmd := wire.Decode(rs.commandSlot(i))
		var cpl wire.Completion
		if rs.admin {
			cpl = rs.backend.handleAdmin(cmd)
		} else {
			cpl = rs.backend.handleIO(cmd)
		}
		cpl.SQHead = uint16((i + 1) % rs.sqSize)
		cpl.Phase = rs.phase

		wire.Encode16(cpl, rs.completionSlot(rs.cqTail))

		rs.cqTail++
		if rs.cqTail == rs.cqSize {
			rs.cqTail = 0
			rs.phase = !rs.phase
		}
	}
	rs.sqHead = newTail
}
