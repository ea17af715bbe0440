/*
   NVMe SCSI bridge - CID table.

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

// Package cid implements the CID Table (spec.md section 4.2): a
// bitmap-allocated table of I/O command identifiers, each owning zero
// or more PRP pool pages. Split requests share a group so the
// refcount-smuggling design note (section 9) never requires the
// upstream request type to carry engine state: the table owns
// cidGroup[cid] -> groupID and group[groupID].{refcount, request},
// the same fixed-array-plus-side-table shape the teacher uses for its
// subchannel table.
package cid

import (
	"errors"
	"math/bits"
	"sync"
)

// DefaultSlots is the reference table size from spec.md section 4.2.
const DefaultSlots = 256

// MaxPRPPerCID bounds the PRP pages a single sub-command may own
// (M in spec.md section 4.2).
const MaxPRPPerCID = 128

// FlushCID is the reserved I/O CID used for barrier flushes that are
// not bound to any upstream request. It lies outside [0, N) so it can
// never collide with an allocated slot.
const FlushCID uint16 = 0xFFFF

var (
	// ErrExhausted is returned by Alloc when fewer than k slots are free.
	ErrExhausted = errors.New("cid: table exhausted")
	// ErrPoolFull is returned by AttachPRP when a CID already owns
	// MaxPRPPerCID pages.
	ErrPoolFull = errors.New("cid: PRP slots exhausted for CID")
	// ErrSpurious marks a Complete call against a CID that is not
	// currently allocated; spec.md section 4.2 requires this to be
	// detectable and logged, never causing a panic or notify.
	ErrSpurious = errors.New("cid: spurious completion")
)

type group struct {
	request  interface{}
	refcount int
}

type slot struct {
	groupID int
	prps    []int
}

// Table is the CID Table. Request is stored as interface{} so the
// engine never imports the upstream SCSI request type.
type Table struct {
	mu     sync.Mutex
	free   []uint64 // bitmap, 1 = free
	n      int
	slots  []slot
	groups map[int]*group
	nextGroup int
}

// NewTable returns a Table with n I/O slots.
func NewTable(n int) *Table {
	words := (n + 63) / 64
	free := make([]uint64, words)
	for i := range free {
		free[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 {
		free[words-1] = (uint64(1) << uint(rem)) - 1
	}
	return &Table{
		free:   free,
		n:      n,
		slots:  make([]slot, n),
		groups: make(map[int]*group),
	}
}

// Alloc atomically reserves k CIDs for one request, all sharing a
// split refcount of k. On partial failure no slot is left allocated.
func (t *Table) Alloc(request interface{}, k int) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cids := make([]uint16, 0, k)
	for len(cids) < k {
		idx, ok := t.firstFreeLocked()
		if !ok {
			for _, c := range cids {
				t.freeLocked(int(c))
			}
			return nil, ErrExhausted
		}
		t.clearLocked(idx)
		cids = append(cids, uint16(idx))
	}

	gid := t.nextGroup
	t.nextGroup++
	t.groups[gid] = &group{request: request, refcount: k}
	for _, c := range cids {
		t.slots[c] = slot{groupID: gid}
	}
	return cids, nil
}

// AttachPRP records one PRP pool page index against cid.
func (t *Table) AttachPRP(cid uint16, poolIndex int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &t.slots[cid]
	if len(s.prps) >= MaxPRPPerCID {
		return ErrPoolFull
	}
	s.prps = append(s.prps, poolIndex)
	return nil
}

// PRPs returns the PRP pool pages owned by cid, for a caller that
// needs to free them outside Complete (e.g. on a submit-time error).
func (t *Table) PRPs(cid uint16) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.slots[cid].prps...)
}

// Complete releases cid's owned PRP indices (via release, which the
// caller supplies since the table does not hold a *prp.Pool),
// clears the slot, and decrements the owning group's refcount. It
// returns the original request iff the refcount reaches zero.
//
// Calling Complete on a CID that is not currently allocated returns
// ErrSpurious and makes no state change, per spec.md section 4.2.
func (t *Table) Complete(cid uint16, release func(poolIndex int)) (interface{}, error) {
	t.mu.Lock()

	idx := int(cid)
	if t.isFreeLocked(idx) {
		t.mu.Unlock()
		return nil, ErrSpurious
	}

	s := t.slots[idx]
	gid := s.groupID
	prps := s.prps
	t.slots[idx] = slot{}
	t.setLocked(idx)

	g := t.groups[gid]
	g.refcount--
	var result interface{}
	done := g.refcount == 0
	if done {
		result = g.request
		delete(t.groups, gid)
	}
	t.mu.Unlock()

	for _, p := range prps {
		release(p)
	}
	if done {
		return result, nil
	}
	return nil, nil
}

// OccupiedCount returns the number of currently allocated CIDs, used
// by tests asserting the bitmap-vs-in-flight invariant from spec.md
// section 8.
func (t *Table) OccupiedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for w, word := range t.free {
		for bit := 0; bit < 64; bit++ {
			idx := w*64 + bit
			if idx >= t.n {
				break
			}
			if word&(uint64(1)<<uint(bit)) == 0 {
				n++
			}
		}
	}
	return n
}

func (t *Table) firstFreeLocked() (int, bool) {
	for w, word := range t.free {
		if word == 0 {
			continue
		}
		bit := bits.TrailingZeros64(word)
		idx := w*64 + bit
		if idx >= t.n {
			continue
		}
		return idx, true
	}
	return 0, false
}

func (t *Table) clearLocked(idx int) { t.free[idx/64] &^= uint64(1) << uint(idx%64) }
func (t *Table) setLocked(idx int)   { t.free[idx/64] |= uint64(1) << uint(idx%64) }
func (t *Table) freeLocked(idx int)  { t.setLocked(idx) }
func (t *Table) isFreeLocked(idx int) bool {
	return t.free[idx/64]&(uint64(1)<<uint(idx%64)) != 0
}
