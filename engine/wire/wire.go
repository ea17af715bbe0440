/*
   NVMe SCSI bridge - on-wire command/completion layout.

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

// Package wire packs and unpacks the 64-byte NVMe command and 16-byte
// completion structures. Both the host-side queue pair and the
// simulated controller backend share this package so the two sides of
// the doorbell agree byte-for-byte on field placement, the way real
// hardware and a real driver agree on the NVMe wire spec.
package wire

import "encoding/binary"

// CommandSize and CompletionSize are the fixed on-wire sizes, per
// spec.md section 3.
const (
	CommandSize    = 64
	CompletionSize = 16
)

// Command is the decoded form of one 64-byte submission queue entry:
// opcode+flags+CID word, NSID, two reserved words, metadata pointer,
// PRP1, PRP2, and CDW10..CDW15.
type Command struct {
	Opcode uint8
	Flags  uint8
	CID    uint16
	NSID   uint32
	CDW2   uint32
	CDW3   uint32
	MPTR   uint64
	PRP1   uint64
	PRP2   uint64
	CDW10  uint32
	CDW11  uint32
	CDW12  uint32
	CDW13  uint32
	CDW14  uint32
	CDW15  uint32
}

// Encode packs c into dst, which must be at least CommandSize bytes.
func Encode(c Command, dst []byte) {
	_ = dst[CommandSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], uint32(c.Opcode)|uint32(c.Flags)<<8|uint32(c.CID)<<16)
	binary.LittleEndian.PutUint32(dst[4:8], c.NSID)
	binary.LittleEndian.PutUint32(dst[8:12], c.CDW2)
	binary.LittleEndian.PutUint32(dst[12:16], c.CDW3)
	binary.LittleEndian.PutUint64(dst[16:24], c.MPTR)
	binary.LittleEndian.PutUint64(dst[24:32], c.PRP1)
	binary.LittleEndian.PutUint64(dst[32:40], c.PRP2)
	binary.LittleEndian.PutUint32(dst[40:44], c.CDW10)
	binary.LittleEndian.PutUint32(dst[44:48], c.CDW11)
	binary.LittleEndian.PutUint32(dst[48:52], c.CDW12)
	binary.LittleEndian.PutUint32(dst[52:56], c.CDW13)
	binary.LittleEndian.PutUint32(dst[56:60], c.CDW14)
	binary.LittleEndian.PutUint32(dst[60:64], c.CDW15)
}

// Decode unpacks a CommandSize-byte slice into a Command.
func Decode(src []byte) Command {
	_ = src[CommandSize-1]
	cdw0 := binary.LittleEndian.Uint32(src[0:4])
	return Command{
		Opcode: uint8(cdw0),
		Flags:  uint8(cdw0 >> 8),
		CID:    uint16(cdw0 >> 16),
		NSID:   binary.LittleEndian.Uint32(src[4:8]),
		CDW2:   binary.LittleEndian.Uint32(src[8:12]),
		CDW3:   binary.LittleEndian.Uint32(src[12:16]),
		MPTR:   binary.LittleEndian.Uint64(src[16:24]),
		PRP1:   binary.LittleEndian.Uint64(src[24:32]),
		PRP2:   binary.LittleEndian.Uint64(src[32:40]),
		CDW10:  binary.LittleEndian.Uint32(src[40:44]),
		CDW11:  binary.LittleEndian.Uint32(src[44:48]),
		CDW12:  binary.LittleEndian.Uint32(src[48:52]),
		CDW13:  binary.LittleEndian.Uint32(src[52:56]),
		CDW14:  binary.LittleEndian.Uint32(src[56:60]),
		CDW15:  binary.LittleEndian.Uint32(src[60:64]),
	}
}

// Completion is the decoded form of one 16-byte completion queue
// entry, per spec.md section 3.
type Completion struct {
	DW0        uint32
	DW1        uint32
	SQHead     uint16
	SQID       uint16
	CID        uint16
	Phase      bool
	StatusCode uint8 // bits 17-24 of the status word
	StatusType uint8 // bits 25-27 of the status word
	More       bool
	DNR        bool
}

// Encode16 packs c into dst, which must be at least CompletionSize bytes.
func Encode16(c Completion, dst []byte) {
	_ = dst[CompletionSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], c.DW0)
	binary.LittleEndian.PutUint32(dst[4:8], c.DW1)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(c.SQHead)|uint32(c.SQID)<<16)
	status := uint32(c.CID)
	if c.Phase {
		status |= 1 << 16
	}
	status |= uint32(c.StatusCode) << 17
	status |= uint32(c.StatusType&0x07) << 25
	if c.More {
		status |= 1 << 29
	}
	if c.DNR {
		status |= 1 << 31
	}
	binary.LittleEndian.PutUint32(dst[12:16], status)
}

// Decode16 unpacks a CompletionSize-byte slice into a Completion.
func Decode16(src []byte) Completion {
	_ = src[CompletionSize-1]
	dw2 := binary.LittleEndian.Uint32(src[8:12])
	status := binary.LittleEndian.Uint32(src[12:16])
	return Completion{
		DW0:        binary.LittleEndian.Uint32(src[0:4]),
		DW1:        binary.LittleEndian.Uint32(src[4:8]),
		SQHead:     uint16(dw2),
		SQID:       uint16(dw2 >> 16),
		CID:        uint16(status),
		Phase:      (status>>16)&1 != 0,
		StatusCode: uint8((status >> 17) & 0xFF),
		StatusType: uint8((status >> 25) & 0x07),
		More:       (status>>29)&1 != 0,
		DNR:        (status>>31)&1 != 0,
	}
}
