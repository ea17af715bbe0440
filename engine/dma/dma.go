/*
   NVMe SCSI bridge - DMA backend interface.

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

// Package dma declares the seam between the NVMe command/completion
// engine and the PCI/MMIO/interrupt layer spec.md keeps out of core
// scope. A production embedding supplies a Backend that maps real
// BAR0 doorbell registers and DMA-coherent pages; package simdma
// supplies an in-host-memory stand-in for development and tests.
package dma

// PageSize is the minimum NVMe memory page size used throughout the
// engine (4 KiB, matching the controller's reported minimum page
// size at MPSMIN=0).
const PageSize = 4096

// Pages is a contiguous run of DMA-addressable pages. Virt is the
// host-accessible view; Phys is the address the controller uses.
// Index i's virtual and physical addresses are Virt[i*PageSize:] and
// Phys+uint64(i)*PageSize respectively, per spec.md section 4.1.
type Pages struct {
	Virt  []byte
	Phys  uint64
	Count int
}

// Page returns the host-accessible slice for page i.
func (p Pages) Page(i int) []byte {
	return p.Virt[i*PageSize : (i+1)*PageSize]
}

// PhysAddr returns the physical address of page i.
func (p Pages) PhysAddr(i int) uint64 {
	return p.Phys + uint64(i)*PageSize
}

// Backend is the external collaborator boundary: PCI enumeration,
// MMIO mapping, cache coherency management, and DMA-contiguous page
// allocation. None of this is implemented by the engine itself.
type Backend interface {
	// AllocPages returns n physically-contiguous, DMA-addressable
	// pages, zeroed.
	AllocPages(n int) (Pages, error)

	// FreePages releases pages obtained from AllocPages.
	FreePages(p Pages) error

	// RingDoorbell writes a 32-bit value to a queue-specific MMIO
	// offset and forces whatever platform-specific posting flush is
	// required so a later read cannot complete before the write
	// drains (spec.md section 6).
	RingDoorbell(offset uint32, value uint32)

	// FlushForDevice write-backs and invalidates p so the controller
	// observes a consistent view after the host writes it (SQ entries,
	// PRP list pages). A coherent platform backend may no-op this.
	FlushForDevice(p []byte)

	// FlushForCPU invalidates p before the host reads it (CQ entries).
	// A coherent platform backend may no-op this.
	FlushForCPU(p []byte)
}

// Fragment is one physically-contiguous, page-sized-or-smaller chunk
// of a buffer, as produced by the adapter glue's SG cursor and
// consumed by the PRP builder.
type Fragment struct {
	Phys uint64
	Len  int
}

// QueueRegistrar is implemented by backends (e.g. simdma) that need
// to know a queue pair's ring layout to simulate or otherwise drive
// controller-side processing. Real hardware backends have no use for
// it since the actual controller discovers rings through CREATE_CQ/
// CREATE_SQ, so Controller only calls it when the backend opts in.
type QueueRegistrar interface {
	RegisterQueue(sqDoorbell, cqDoorbell uint32, sq, cq Pages, sqSize, cqSize int, admin bool)
	UnregisterQueue(sqDoorbell uint32)
}

// Doorbell offsets, relative to the controller's doorbell stride.
// Computed by the controller for queue N; see engine/controller.
const (
	AdminSQDoorbell uint32 = 0x1000
	AdminCQDoorbell uint32 = 0x1000 + 4
)
