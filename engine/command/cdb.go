/*
   NVMe SCSI bridge - SCSI CDB to NVMe R/W translation.

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

// Package command implements the Command Builder (spec.md section
// 4.4): SCSI CDB parsing, NVMe admin/R-W command construction, and
// MDTS-based splitting.
package command

import (
	"errors"
)

// SCSI CDB opcodes this bridge translates.
const (
	cdbRead6   = 0x08
	cdbWrite6  = 0x0A
	cdbRead10  = 0x28
	cdbWrite10 = 0x2A
	cdbRead16  = 0x88
	cdbWrite16 = 0x8A
)

// ErrUnsupportedOpcode is returned by ParseCDB for any CDB opcode
// this bridge does not translate.
var ErrUnsupportedOpcode = errors.New("command: unsupported CDB opcode")

// RW describes one parsed SCSI read/write request before splitting.
type RW struct {
	Write  bool
	LBA    uint64
	Blocks uint32
}

// ParseCDB extracts opcode, LBA, and transfer length from a SCSI
// READ/WRITE 6, 10, or 16 CDB, per spec.md section 4.4's field
// layouts. READ/WRITE 6 with a zero length field means 256 blocks.
func ParseCDB(cdb []byte) (RW, error) {
	if len(cdb) == 0 {
		return RW{}, ErrUnsupportedOpcode
	}
	switch cdb[0] {
	case cdbRead6, cdbWrite6:
		if len(cdb) < 6 {
			return RW{}, ErrUnsupportedOpcode
		}
		lba := uint64(cdb[1]&0x1F)<<16 | uint64(cdb[2])<<8 | uint64(cdb[3])
		blocks := uint32(cdb[4])
		if blocks == 0 {
			blocks = 256
		}
		return RW{Write: cdb[0] == cdbWrite6, LBA: lba, Blocks: blocks}, nil

	case cdbRead10, cdbWrite10:
		if len(cdb) < 10 {
			return RW{}, ErrUnsupportedOpcode
		}
		lba := uint64(cdb[2])<<24 | uint64(cdb[3])<<16 | uint64(cdb[4])<<8 | uint64(cdb[5])
		blocks := uint32(cdb[7])<<8 | uint32(cdb[8])
		return RW{Write: cdb[0] == cdbWrite10, LBA: lba, Blocks: blocks}, nil

	case cdbRead16, cdbWrite16:
		if len(cdb) < 16 {
			return RW{}, ErrUnsupportedOpcode
		}
		lba := uint64(cdb[2])<<56 | uint64(cdb[3])<<48 | uint64(cdb[4])<<40 | uint64(cdb[5])<<32 |
			uint64(cdb[6])<<24 | uint64(cdb[7])<<16 | uint64(cdb[8])<<8 | uint64(cdb[9])
		blocks := uint32(cdb[10])<<24 | uint32(cdb[11])<<16 | uint32(cdb[12])<<8 | uint32(cdb[13])
		return RW{Write: cdb[0] == cdbWrite16, LBA: lba, Blocks: blocks}, nil

	default:
		return RW{}, ErrUnsupportedOpcode
	}
}
