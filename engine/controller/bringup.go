/*
   NVMe SCSI bridge - I/O queue pair bring-up.

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

	"github.com/brandfoss/nvmescsi/engine/cid"
	"github.com/brandfoss/nvmescsi/engine/command"
	"github.com/brandfoss/nvmescsi/engine/completion"
	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/queue"
)

const (
	ioSQDoorbell uint32 = dma.AdminSQDoorbell + 8
	ioCQDoorbell uint32 = dma.AdminSQDoorbell + 12
	ioQID        uint16 = 1
)

// CreateIOQueues issues CREATE_CQ then CREATE_SQ to bring up the
// single I/O queue pair spec.md's Non-goals restrict this bridge to.
func (c *Controller) CreateIOQueues(ctx context.Context, depth int) error {
	io, err := queue.New(c.backend, depth, ioSQDoorbell, ioCQDoorbell, completion.NewIOHandler(c.cidTable, c.pool, c.logger, c.flushWaiter))
	if err != nil {
		return err
	}

	cqPhys := io.CQPages().PhysAddr(0)
	ch := c.adminDispatcher.Await(cid.AdminCreateCQ)
	if err := c.admin.Submit(command.CreateCQ(cid.AdminCreateCQ, ioQID, uint16(depth-1), cqPhys, 0)); err != nil {
		return err
	}
	if _, err := c.waitAdmin(ctx, ch); err != nil {
		return err
	}

	sqPhys := io.SQPages().PhysAddr(0)
	ch = c.adminDispatcher.Await(cid.AdminCreateSQ)
	if err := c.admin.Submit(command.CreateSQ(cid.AdminCreateSQ, ioQID, uint16(depth-1), sqPhys, ioQID)); err != nil {
		return err
	}
	if _, err := c.waitAdmin(ctx, ch); err != nil {
		return err
	}

	if reg, ok := c.backend.(dma.QueueRegistrar); ok {
		reg.RegisterQueue(ioSQDoorbell, ioCQDoorbell, io.SQPages(), io.CQPages(), depth, depth, false)
	}

	c.io = io
	c.ioSize = uint16(depth)
	return nil
}
