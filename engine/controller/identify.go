/*
   NVMe SCSI bridge - controller identify sequence.

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
	"time"

	"github.com/bytedance/gopkg/cache/mempool"

	"github.com/brandfoss/nvmescsi/engine/cid"
	"github.com/brandfoss/nvmescsi/engine/command"
	"github.com/brandfoss/nvmescsi/engine/completion"
	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

// Identify issues IDENTIFY CONTROLLER then IDENTIFY NAMESPACE on the
// admin queue, parses the utility buffer per spec.md section 4.6, and
// records BlockSize/MaxTransferBlocks on the Controller.
func (c *Controller) Identify(ctx context.Context) (completion.Identity, error) {
	ch := c.adminDispatcher.Await(cid.AdminIdentifyController)
	if err := c.admin.Submit(command.IdentifyController(cid.AdminIdentifyController, c.utilBuf.PhysAddr(0))); err != nil {
		return completion.Identity{}, err
	}
	if _, err := c.waitAdmin(ctx, ch); err != nil {
		return completion.Identity{}, err
	}

	// Copy the utility page into a pooled scratch buffer before
	// parsing so repeated admin round-trips reuse one allocation
	// instead of retaining the pinned DMA page's bytes.
	scratch := mempool.Malloc(dma.PageSize)
	defer mempool.Free(scratch)
	copy(scratch, c.utilBuf.Page(0))
	id := completion.ParseIdentifyController(scratch, c.cfg.MDTSCapBlocks)

	ch = c.adminDispatcher.Await(cid.AdminIdentifyNamespace)
	if err := c.admin.Submit(command.IdentifyNamespace(cid.AdminIdentifyNamespace, c.utilBuf.PhysAddr(0))); err != nil {
		return completion.Identity{}, err
	}
	if _, err := c.waitAdmin(ctx, ch); err != nil {
		return completion.Identity{}, err
	}

	copy(scratch, c.utilBuf.Page(0))
	nsze, blockSize := completion.ParseIdentifyNamespace(scratch)
	id.NSZE = nsze
	id.BlockSize = blockSize

	c.Identity = id
	return id, nil
}

// waitAdmin blocks for ch to receive the awaited completion,
// polling DrainAdmin so the simulated backend's asynchronously posted
// entries are noticed without a dedicated interrupt loop.
func (c *Controller) waitAdmin(ctx context.Context, ch <-chan wire.Completion) (wire.Completion, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case cpl := <-ch:
			return cpl, nil
		case <-ticker.C:
			c.DrainAdmin()
		case <-ctx.Done():
			return wire.Completion{}, ctx.Err()
		}
	}
}
