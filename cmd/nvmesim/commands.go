/*
   NVMe SCSI bridge - simulator CLI commands.

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

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brandfoss/nvmescsi/engine/controller"
	"github.com/brandfoss/nvmescsi/engine/scsi"
)

var cmdNames = []string{"attach", "identify", "read", "write", "flush", "stats", "help", "quit"}

func completeCmd(prefix string) []string {
	var out []string
	for _, c := range cmdNames {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// dispatch runs one console command. The bool return requests the
// console loop exit.
func dispatch(ctx context.Context, ctrl *controller.Controller, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Println("commands: attach, identify, read <lba> <blocks>, write <lba> <blocks>, flush, stats, quit")
		return false, nil

	case "attach":
		if err := ctrl.CreateIOQueues(ctx, 256); err != nil {
			return false, err
		}
		fmt.Println("I/O queue pair created")
		return false, nil

	case "identify":
		id, err := ctrl.Identify(ctx)
		if err != nil {
			return false, err
		}
		fmt.Printf("serial=%q model=%q firmware=%q nsze=%d blocksize=%d maxtransfer=%d blocks\n",
			id.Serial, id.Model, id.Firmware, id.NSZE, id.BlockSize, id.MaxTransferBlocks)
		return false, nil

	case "read":
		return false, doIO(ctx, ctrl, false, fields[1:])

	case "write":
		return false, doIO(ctx, ctrl, true, fields[1:])

	case "flush":
		if err := ctrl.Flush(ctx); err != nil {
			return false, err
		}
		fmt.Println("flush complete")
		return false, nil

	case "stats":
		s := ctrl.Stats()
		fmt.Printf("pool: %d/%d pages free  cids: %d/%d in flight  io ready: %v\n",
			s.PoolFreePages, s.PoolTotalPages, s.CIDsInFlight, s.CIDTotalSlots, s.IOReady)
		return false, nil

	default:
		return false, errors.New("unknown command: " + fields[0])
	}
}

// doIO builds a READ(10)/WRITE(10) CDB for lba/blocks, submits it
// through the Controller, and polls DrainIO until Notify fires.
func doIO(ctx context.Context, ctrl *controller.Controller, write bool, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: read|write <lba> <blocks>")
	}
	lba, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return errors.New("invalid lba: " + args[0])
	}
	blocks, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return errors.New("invalid block count: " + args[1])
	}

	cdb := make([]byte, 10)
	if write {
		cdb[0] = 0x2A
	} else {
		cdb[0] = 0x28
	}
	binary.BigEndian.PutUint32(cdb[2:6], uint32(lba))
	binary.BigEndian.PutUint16(cdb[7:9], uint16(blocks))

	pages, err := ctrl.Backend().AllocPages(1)
	if err != nil {
		return err
	}
	if write {
		for i := range pages.Virt {
			pages.Virt[i] = byte(i)
		}
	}

	done := make(chan struct {
		status scsi.Status
		resid  int
	}, 1)

	req := &scsi.Request{
		CDB:    cdb,
		Mode:   scsi.ModeKernelVirtual,
		Buffer: pages,
		Sense:  make([]byte, 18),
		Notify: func(status scsi.Status, resid int) {
			done <- struct {
				status scsi.Status
				resid  int
			}{status, resid}
		},
	}

	if err := ctrl.SubmitSCSI(ctx, req); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			if res.status != scsi.StatusGood {
				return fmt.Errorf("command failed: status=%d sense key=0x%02x asc=0x%02x ascq=0x%02x",
					res.status, req.Sense[2], req.Sense[12], req.Sense[13])
			}
			fmt.Printf("ok: %d block(s) transferred\n", blocks)
			return nil
		case <-ticker.C:
			ctrl.DrainIO()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
