/*
   NVMe SCSI bridge - barrier flush.

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

	"github.com/brandfoss/nvmescsi/engine/cid"
	"github.com/brandfoss/nvmescsi/engine/command"
)

// Flush issues a barrier FLUSH bound to the reserved flush CID on the
// I/O queue and blocks until it completes, per spec.md section 4.6.
// Unlike ordinary read/write completions it carries no SCSI request
// to notify, so the caller waits on it directly.
func (c *Controller) Flush(ctx context.Context) error {
	if c.io == nil {
		return ErrNotIdentified
	}

	done := c.flushWaiter.Await()
	if err := c.io.Submit(command.BuildFlush(cid.FlushCID)); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			c.DrainIO()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
