/*
   NVMe SCSI bridge - SCSI submit path.

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

package controller

import (
	"context"

	"github.com/brandfoss/nvmescsi/engine/command"
	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/prp"
	"github.com/brandfoss/nvmescsi/engine/scsi"
)

// SubmitSCSI is the end-to-end I/O path of spec.md section 2's data
// flow: Command Builder -> split -> PRP Builder (every sub-command) ->
// CID Table (one allocation for all sub-commands) -> Queue Pair submit.
func (c *Controller) SubmitSCSI(ctx context.Context, req *scsi.Request) error {
	rw, err := command.ParseCDB(req.CDB)
	if err != nil {
		scsi.WriteSense(req.Sense, scsi.SenseIllegalRequest, 0x20, 0)
		notify(req, scsi.StatusCheckCondition, req.BufferLen())
		return err
	}

	if c.io == nil || c.Identity.MaxTransferBlocks == 0 {
		return ErrNotIdentified
	}

	frags, cleanup, err := scsi.Prepare(req, c.backend)
	if err != nil {
		scsi.WriteSense(req.Sense, scsi.SenseHardwareError, 0x44, 0)
		notify(req, scsi.StatusCheckCondition, req.BufferLen())
		return err
	}
	defer cleanup()

	subs := command.Split(rw, c.Identity.MaxTransferBlocks)
	subFrags := partitionFragments(frags, subs, c.Identity.BlockSize)

	results := make([]prp.Result, len(subs))
	for i, sf := range subFrags {
		res, err := prp.Build(c.pool, sf)
		if err != nil {
			for j := 0; j < i; j++ {
				freePages(c.pool, results[j].ListPages)
			}
			notify(req, scsi.StatusBusy, 0)
			return err
		}
		results[i] = res
	}

	cids, err := c.cidTable.Alloc(req, len(subs))
	if err != nil {
		for _, res := range results {
			freePages(c.pool, res.ListPages)
		}
		notify(req, scsi.StatusBusy, 0)
		return err
	}

	for i, sub := range subs {
		for _, idx := range results[i].ListPages {
			c.cidTable.AttachPRP(cids[i], idx)
		}
		cmd := command.BuildRW(rw.Write, cids[i], sub, results[i].PRP1, results[i].PRP2)
		if err := c.io.Submit(cmd); err != nil {
			// This sub-command and all that follow never reach the
			// controller and will never complete for real. Synthesize
			// their completion here so the request's refcount still
			// reaches zero exactly once and no CID or PRP page is left
			// owned. cids[i]'s PRP pages are already attached by this
			// loop iteration; only k > i still need attaching.
			c.cidTable.Complete(cids[i], c.pool.Free)
			for k := i + 1; k < len(subs); k++ {
				for _, idx := range results[k].ListPages {
					c.cidTable.AttachPRP(cids[k], idx)
				}
				c.cidTable.Complete(cids[k], c.pool.Free)
			}
			notify(req, scsi.StatusBusy, 0)
			return err
		}
	}

	return nil
}

func freePages(pool *prp.Pool, indices []int) {
	for _, idx := range indices {
		pool.Free(idx)
	}
}

func notify(req *scsi.Request, status scsi.Status, resid int) {
	if req.Notify != nil {
		req.Notify(status, resid)
	}
}

// partitionFragments splits frags (one page-sized chunk each) across
// subs in transfer order, each sub-command consuming
// ceil(sub.Blocks*blockSize / page_size) fragments.
func partitionFragments(frags []dma.Fragment, subs []command.SubCommand, blockSize uint32) [][]dma.Fragment {
	out := make([][]dma.Fragment, len(subs))
	pos := 0
	for i, s := range subs {
		bytes := uint64(s.Blocks) * uint64(blockSize)
		n := int((bytes + dma.PageSize - 1) / dma.PageSize)
		if pos+n > len(frags) {
			n = len(frags) - pos
		}
		out[i] = frags[pos : pos+n]
		pos += n
	}
	return out
}
