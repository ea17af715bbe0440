/*
   NVMe SCSI bridge - upstream SCSI request / adapter glue.

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

// Package scsi is the SCSI Adapter Glue (spec.md section 4.7 and
// 4.6's I/O handler half): the opaque upstream request type, its four
// buffer-preparation modes, and NVMe status -> SCSI sense translation.
// Request stays deliberately thin — the engine never dereferences
// driver-internal state through it, per spec.md section 9's
// cyclic-ownership design note.
package scsi

import (
	"errors"
	"sync"

	"github.com/brandfoss/nvmescsi/engine/dma"
)

// Mode selects how Prepare turns a Request's buffer description into
// a scatter-gather fragment list, per spec.md section 4.7.
type Mode int

const (
	// ModePrebuiltSG means the upstream layer already built an SG
	// list; used directly, no locking.
	ModePrebuiltSG Mode = iota
	// ModeBufferPointer synthesizes an SG list from a buffer
	// descriptor using the driver-owned, lock-serialized SG list.
	ModeBufferPointer
	// ModeKernelVirtual requires 4-byte alignment and, if Flush is
	// set, a cache write-back/invalidate around the transfer.
	ModeKernelVirtual
	// ModeUserVirtual is the same contract as ModeKernelVirtual using
	// user-virtual-address translation.
	ModeUserVirtual
)

// ErrAlignment is returned by Prepare for kernel/user-virtual modes
// whose buffer pointer or length is not 4-byte aligned.
var ErrAlignment = errors.New("scsi: buffer not 4-byte aligned")

// ErrSGTranslation is returned by Prepare when a request names a mode
// that has no usable buffer description.
var ErrSGTranslation = errors.New("scsi: no usable buffer for SG translation")

// Status is the SCSI status code written back to the upstream request.
type Status uint8

const (
	StatusGood           Status = 0x00
	StatusCheckCondition Status = 0x02
	StatusBusy           Status = 0x08
)

// Request is the opaque upstream SCSI request. The engine reads CDB,
// Mode, Buffer/SGList, Flush, and Sense; it writes the three Status/
// Resid/Notify outputs exactly once per request, per spec.md section
// 6's upstream contract. It deliberately carries no split-refcount
// field — engine/cid owns that — so an upstream integrator can drop
// unused fields freely.
type Request struct {
	CDB []byte

	Mode   Mode
	Buffer dma.Pages      // used by ModeBufferPointer/KernelVirtual/UserVirtual
	SGList []dma.Fragment // used by ModePrebuiltSG

	// Flush requests an explicit cache write-back/invalidate around
	// the transfer for ModeKernelVirtual/ModeUserVirtual, per spec.md
	// section 4.7.
	Flush bool

	Sense []byte

	// Notify is invoked exactly once, with no core lock held, when
	// the request (or its final split sub-command) completes.
	Notify func(status Status, resid int)
}

// BufferLen returns the total byte length of req's data buffer,
// independent of Mode: spec.md section 4.6 requires Resid be set to
// this full length when a command fails with none of the transfer
// completed.
func (r *Request) BufferLen() int {
	if r.Mode == ModePrebuiltSG {
		n := 0
		for _, f := range r.SGList {
			n += f.Len
		}
		return n
	}
	return r.Buffer.Count * dma.PageSize
}

// sgLock serializes ModeBufferPointer's use of the driver-owned SG
// list, per spec.md section 4.7's "dedicated lock" requirement. It is
// package-level because the driver-owned SG list spec.md describes is
// itself a single shared resource, not one per request.
var sgLock sync.Mutex

// Prepare produces the scatter-gather fragment list for req per its
// Mode, applying the alignment check and locking spec.md section 4.7
// requires.
func Prepare(req *Request, backend dma.Backend) ([]dma.Fragment, func(), error) {
	switch req.Mode {
	case ModePrebuiltSG:
		if len(req.SGList) == 0 {
			return nil, nil, ErrSGTranslation
		}
		return req.SGList, func() {}, nil

	case ModeBufferPointer:
		if req.Buffer.Count == 0 {
			return nil, nil, ErrSGTranslation
		}
		sgLock.Lock()
		return fragmentsFromPages(req.Buffer), sgLock.Unlock, nil

	case ModeKernelVirtual, ModeUserVirtual:
		if req.Buffer.Count == 0 {
			return nil, nil, ErrSGTranslation
		}
		if req.Buffer.Phys%4 != 0 {
			return nil, nil, ErrAlignment
		}
		if req.Flush {
			for i := 0; i < req.Buffer.Count; i++ {
				backend.FlushForDevice(req.Buffer.Page(i))
			}
		}
		return fragmentsFromPages(req.Buffer), func() {}, nil

	default:
		return nil, nil, ErrSGTranslation
	}
}

func fragmentsFromPages(p dma.Pages) []dma.Fragment {
	frags := make([]dma.Fragment, p.Count)
	for i := 0; i < p.Count; i++ {
		frags[i] = dma.Fragment{Phys: p.PhysAddr(i), Len: dma.PageSize}
	}
	return frags
}
