/*
   NVMe SCSI bridge - wire layout tests.

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

package wire_test

import (
	"testing"

	"github.com/brandfoss/nvmescsi/engine/wire"
)

func TestCommandRoundTrip(t *testing.T) {
	c := wire.Command{
		Opcode: wire.OpWrite,
		Flags:  0x01,
		CID:    0x1234,
		NSID:   1,
		CDW2:   0x77777777,
		CDW3:   0x88888888,
		MPTR:   0xDEADBEEF,
		PRP1:   0x1000,
		PRP2:   0x2000,
		CDW10:  0x11111111,
		CDW11:  0x22222222,
		CDW12:  0x33333333,
		CDW13:  0x44444444,
		CDW14:  0x55555555,
		CDW15:  0x66666666,
	}
	buf := make([]byte, wire.CommandSize)
	wire.Encode(c, buf)
	got := wire.Decode(buf)
	if got != c {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestCompletionRoundTrip(t *testing.T) {
	cases := []wire.Completion{
		{CID: 0x0042, Phase: false},
		{CID: 0xFFFF, Phase: true},
		{DW0: 0xAABBCCDD, CID: 7, StatusType: wire.StatusTypeGeneric, StatusCode: wire.StatusLBARange, DNR: true},
		{CID: 1, SQHead: 5, SQID: 1, More: true, Phase: true},
	}
	for _, c := range cases {
		buf := make([]byte, wire.CompletionSize)
		wire.Encode16(c, buf)
		got := wire.Decode16(buf)
		if got != c {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
		}
	}
}

func TestCompletionPhaseBitDoesNotLeakIntoCID(t *testing.T) {
	c := wire.Completion{CID: 0xFFFF, Phase: true}
	buf := make([]byte, wire.CompletionSize)
	wire.Encode16(c, buf)
	got := wire.Decode16(buf)
	if got.CID != 0xFFFF {
		t.Fatalf("expected CID 0xFFFF preserved alongside phase bit, got 0x%04x", got.CID)
	}
	if !got.Phase {
		t.Fatal("expected phase bit set")
	}
}
