/*
   NVMe SCSI bridge - SQ/CQ queue pair.

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

// Package queue implements the Queue Pair (spec.md section 4.3): the
// SQ/CQ ring over which commands are submitted and completions are
// drained, with the head/tail/phase-bit discipline and lock ordering
// spec.md section 5 requires. The producer/consumer shape mirrors the
// teacher's sys_channel package, which drives a fixed-size structure
// array from concurrent callers under one mutex while dispatching
// completion handling without that lock held.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

// ErrFull is returned by Submit when the ring has no free slot.
// Per spec.md section 4.3 invariant 1, sq_tail is never advanced and
// no doorbell write occurs when this is returned.
var ErrFull = errors.New("queue: submission queue full")

// Handler processes one drained completion. It is invoked with no
// queue lock held, per spec.md section 4.3's concurrency contract.
type Handler func(wire.Completion)

// Pair is one SQ/CQ ring plus its doorbell offsets and completion
// dispatch.
type Pair struct {
	backend dma.Backend

	sq, cq dma.Pages

	size      int
	sizeMask  uint32
	sizeShift uint

	sqDoorbell uint32
	cqDoorbell uint32

	mu     sync.Mutex
	sqTail uint32
	sqHead atomic.Uint32

	cqHead uint32 // unbounded; wraps only when indexing

	handler Handler
}

// New creates a Pair of the given power-of-two size, backed by pages
// from backend. handler is invoked for each drained completion.
func New(backend dma.Backend, size int, sqDoorbell, cqDoorbell uint32, handler Handler) (*Pair, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, errors.New("queue: size must be a power of two")
	}
	sqPages := (size*wire.CommandSize + dma.PageSize - 1) / dma.PageSize
	cqPages := (size*wire.CompletionSize + dma.PageSize - 1) / dma.PageSize
	if sqPages < 1 {
		sqPages = 1
	}
	if cqPages < 1 {
		cqPages = 1
	}
	sq, err := backend.AllocPages(sqPages)
	if err != nil {
		return nil, err
	}
	cq, err := backend.AllocPages(cqPages)
	if err != nil {
		backend.FreePages(sq)
		return nil, err
	}
	// Stamp every CQ entry with phase 1 so no slot matches the first
	// lap's expected phase 0 before the controller posts it.
	for i := 0; i < size; i++ {
		wire.Encode16(wire.Completion{Phase: true}, cq.Virt[i*wire.CompletionSize:(i+1)*wire.CompletionSize])
	}

	shift := 0
	for 1<<uint(shift) < size {
		shift++
	}

	return &Pair{
		backend:    backend,
		sq:         sq,
		cq:         cq,
		size:       size,
		sizeMask:   uint32(size - 1),
		sizeShift:  uint(shift),
		sqDoorbell: sqDoorbell,
		cqDoorbell: cqDoorbell,
		handler:    handler,
	}, nil
}

// SQPages and CQPages expose the backing pages so Controller can
// register them with a QueueRegistrar backend.
func (p *Pair) SQPages() dma.Pages { return p.sq }
func (p *Pair) CQPages() dma.Pages { return p.cq }

// Doorbells returns the SQ/CQ doorbell offsets.
func (p *Pair) Doorbells() (uint32, uint32) { return p.sqDoorbell, p.cqDoorbell }

func (p *Pair) sqSlot(i uint32) []byte {
	return p.sq.Virt[i*wire.CommandSize : (i+1)*wire.CommandSize]
}

func (p *Pair) cqSlot(i uint32) []byte {
	return p.cq.Virt[i*wire.CompletionSize : (i+1)*wire.CompletionSize]
}

// Submit writes cmd into the next SQ slot and rings the SQ doorbell.
// Multiple goroutines may call Submit concurrently (spec.md section
// 4.3's concurrency contract).
func (p *Pair) Submit(cmd wire.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := (p.sqTail + 1) & p.sizeMask
	if next == p.sqHead.Load() {
		return ErrFull
	}

	slot := p.sqSlot(p.sqTail)
	wire.Encode(cmd, slot)
	p.backend.FlushForDevice(slot)

	p.sqTail = next
	p.backend.RingDoorbell(p.sqDoorbell, p.sqTail)

	return nil
}

// ProcessCompletions drains every CQ entry whose phase bit matches
// the expected phase, dispatching each to the handler with no lock
// held, then publishes cq_head to the doorbell if any entry was
// processed. It returns the number of completions processed.
func (p *Pair) ProcessCompletions() int {
	n := 0
	for {
		idx := p.cqHead & p.sizeMask
		slot := p.cqSlot(idx)
		p.backend.FlushForCPU(slot)

		cpl := wire.Decode16(slot)
		expectedPhase := (p.cqHead>>p.sizeShift)&1 != 0
		if cpl.Phase != expectedPhase {
			break
		}

		p.sqHead.Store(uint32(cpl.SQHead))
		p.cqHead++
		n++

		p.handler(cpl)
	}
	if n > 0 {
		p.backend.RingDoorbell(p.cqDoorbell, p.cqHead&p.sizeMask)
	}
	return n
}
