/*
   NVMe SCSI bridge - controller teardown.

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
	"github.com/brandfoss/nvmescsi/engine/dma"
)

// Shutdown tears down the I/O queue pair (if created) and the admin
// queue pair in the reverse order of bring-up: DELETE_SQ, DELETE_CQ,
// per spec.md section 3's lifecycle, then releases every page the
// Controller owns.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.io != nil {
		ch := c.adminDispatcher.Await(cid.AdminDeleteSQ)
		if err := c.admin.Submit(command.DeleteSQ(cid.AdminDeleteSQ, ioQID)); err != nil {
			return err
		}
		if _, err := c.waitAdmin(ctx, ch); err != nil {
			return err
		}

		ch = c.adminDispatcher.Await(cid.AdminDeleteCQ)
		if err := c.admin.Submit(command.DeleteCQ(cid.AdminDeleteCQ, ioQID)); err != nil {
			return err
		}
		if _, err := c.waitAdmin(ctx, ch); err != nil {
			return err
		}

		if reg, ok := c.backend.(dma.QueueRegistrar); ok {
			sqDB, _ := c.io.Doorbells()
			reg.UnregisterQueue(sqDB)
		}

		c.backend.FreePages(c.io.SQPages())
		c.backend.FreePages(c.io.CQPages())
		c.io = nil
	}

	if reg, ok := c.backend.(dma.QueueRegistrar); ok {
		sqDB, _ := c.admin.Doorbells()
		reg.UnregisterQueue(sqDB)
	}

	c.backend.FreePages(c.admin.SQPages())
	c.backend.FreePages(c.admin.CQPages())
	c.backend.FreePages(c.utilBuf)
	c.backend.FreePages(c.pool.Pages())

	return nil
}
