/*
   NVMe SCSI bridge - completion engine.

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

// Package completion implements the two completion handlers spec.md
// section 4.6 describes sharing one process_completions driver: the
// admin handler (utility-buffer parsing) and the I/O handler (status
// -> SCSI sense translation and upstream notify).
package completion

import (
	"bytes"
	"encoding/binary"
)

// Identity holds the fields the admin handler extracts from the
// Identify Controller and Identify Namespace utility buffers.
type Identity struct {
	Serial            string
	Model             string
	Firmware          string
	NSZE              uint64
	BlockSize         uint32
	MaxTransferBlocks uint32
}

// DefaultMDTSCapBlocks is the ad-hoc cap spec.md section 9's open
// question accepts for MDTS=0 ("no limit").
const DefaultMDTSCapBlocks = 0xFFFF

// ParseIdentifyController extracts the Serial Number (bytes 4-23),
// Model Number (24-63), Firmware Revision (64-71), and MDTS (byte 77)
// fields, matching the field layout real Go NVMe ioctl clients (e.g.
// dswarbrick's nvme.go) decode.
func ParseIdentifyController(buf []byte, mdtsCapBlocks uint32) Identity {
	mdts := buf[77]
	max := uint32(1) << mdts
	if mdts == 0 || max > mdtsCapBlocks {
		max = mdtsCapBlocks
	}
	return Identity{
		Serial:            trimmed(buf[4:24]),
		Model:             trimmed(buf[24:64]),
		Firmware:          trimmed(buf[64:72]),
		MaxTransferBlocks: max,
	}
}

// ParseIdentifyNamespace extracts NSZE (bytes 0-7) and, via FLBAS
// (byte 26) selecting an LBA format entry at offset 128+4*flbas,
// computes BlockSize = 1 << LBADS.
func ParseIdentifyNamespace(buf []byte) (nsze uint64, blockSize uint32) {
	nsze = binary.LittleEndian.Uint64(buf[0:8])
	flbas := buf[26] & 0x0F
	lbaf := buf[128+int(flbas)*4:]
	lbads := lbaf[2]
	return nsze, uint32(1) << lbads
}

func trimmed(b []byte) string {
	return string(bytes.TrimRight(b, " \x00"))
}
