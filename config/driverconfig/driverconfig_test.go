/*
   NVMe SCSI bridge - driver bring-up configuration stanza tests.

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

package driverconfig

import (
	"testing"

	config "github.com/brandfoss/nvmescsi/config/configparser"
	"github.com/brandfoss/nvmescsi/engine/controller"
)

func resetControllerConfig() {
	Controller = controller.DefaultConfig()
	Sim = SimParams{NSZEBlocks: 2 << 20, BlockSize: 512, MDTS: 7}
}

func TestSetControllerOverridesNamedFields(t *testing.T) {
	resetControllerConfig()

	opts := []config.Option{
		{Name: "admin", EqualOpt: "16"},
		{Name: "IO", EqualOpt: "512"},
		{Name: "pool", EqualOpt: "128"},
		{Name: "cids", EqualOpt: "64"},
		{Name: "mdtscap", EqualOpt: "2048"},
	}
	if err := setController(config.NoAddr, "", opts); err != nil {
		t.Fatalf("setController: %v", err)
	}
	if Controller.AdminQueueDepth != 16 {
		t.Errorf("AdminQueueDepth = %d, want 16", Controller.AdminQueueDepth)
	}
	if Controller.IOQueueDepth != 512 {
		t.Errorf("IOQueueDepth = %d, want 512", Controller.IOQueueDepth)
	}
	if Controller.PoolPages != 128 {
		t.Errorf("PoolPages = %d, want 128", Controller.PoolPages)
	}
	if Controller.CIDSlots != 64 {
		t.Errorf("CIDSlots = %d, want 64", Controller.CIDSlots)
	}
	if Controller.MDTSCapBlocks != 2048 {
		t.Errorf("MDTSCapBlocks = %d, want 2048", Controller.MDTSCapBlocks)
	}
}

func TestSetControllerRejectsUnknownOption(t *testing.T) {
	resetControllerConfig()

	err := setController(config.NoAddr, "", []config.Option{{Name: "bogus", EqualOpt: "1"}})
	if err == nil {
		t.Fatal("expected an error for an unknown CONTROLLER option")
	}
}

func TestSetControllerRejectsNonNumericValue(t *testing.T) {
	resetControllerConfig()

	err := setController(config.NoAddr, "", []config.Option{{Name: "admin", EqualOpt: "many"}})
	if err == nil {
		t.Fatal("expected an error for a non-numeric CONTROLLER value")
	}
}

func TestSetSimOverridesNamedFields(t *testing.T) {
	resetControllerConfig()

	opts := []config.Option{
		{Name: "nsze", EqualOpt: "1000000"},
		{Name: "blocksize", EqualOpt: "4096"},
		{Name: "mdts", EqualOpt: "5"},
	}
	if err := setSim(config.NoAddr, "", opts); err != nil {
		t.Fatalf("setSim: %v", err)
	}
	if Sim.NSZEBlocks != 1000000 {
		t.Errorf("NSZEBlocks = %d, want 1000000", Sim.NSZEBlocks)
	}
	if Sim.BlockSize != 4096 {
		t.Errorf("BlockSize = %d, want 4096", Sim.BlockSize)
	}
	if Sim.MDTS != 5 {
		t.Errorf("MDTS = %d, want 5", Sim.MDTS)
	}
}

func TestSetSimRejectsUnknownOption(t *testing.T) {
	resetControllerConfig()

	err := setSim(config.NoAddr, "", []config.Option{{Name: "bogus", EqualOpt: "1"}})
	if err == nil {
		t.Fatal("expected an error for an unknown SIM option")
	}
}
