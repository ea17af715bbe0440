/*
   NVMe SCSI bridge - driver bring-up configuration stanzas.

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

// Package driverconfig registers the CONTROLLER and SIM configuration
// stanzas with config/configparser, in the same init()-registration
// style the teacher's config/debugconfig uses for its DEBUG stanza.
// CONTROLLER overrides engine/controller.Config fields; SIM overrides
// the simulated backend's reported geometry.
package driverconfig

import (
	"errors"
	"strconv"
	"strings"

	config "github.com/brandfoss/nvmescsi/config/configparser"
	"github.com/brandfoss/nvmescsi/engine/controller"
)

// Controller holds the parsed CONTROLLER stanza, applied over
// controller.DefaultConfig() by main before NewController is called.
var Controller = controller.DefaultConfig()

// Sim holds the parsed SIM stanza describing the simulated backend's
// reported namespace geometry.
type SimParams struct {
	NSZEBlocks uint64
	BlockSize  uint32
	MDTS       uint8
}

// Sim defaults match a modest 1 GiB, 512-byte-block namespace at
// MDTS=7 (128 blocks per sub-command).
var Sim = SimParams{NSZEBlocks: 2 << 20, BlockSize: 512, MDTS: 7}

func init() {
	config.RegisterModel("CONTROLLER", config.TypeOptions, setController)
	config.RegisterModel("SIM", config.TypeOptions, setSim)
}

func setController(_ uint16, _ string, options []config.Option) error {
	for _, opt := range options {
		name := strings.ToUpper(opt.Name)
		n, err := strconv.ParseUint(opt.EqualOpt, 10, 32)
		if err != nil {
			return errors.New("CONTROLLER option " + name + " requires a numeric value")
		}
		switch name {
		case "ADMIN":
			Controller.AdminQueueDepth = int(n)
		case "IO":
			Controller.IOQueueDepth = int(n)
		case "POOL":
			Controller.PoolPages = int(n)
		case "CIDS":
			Controller.CIDSlots = int(n)
		case "MDTSCAP":
			Controller.MDTSCapBlocks = uint32(n)
		default:
			return errors.New("unknown CONTROLLER option: " + name)
		}
	}
	return nil
}

func setSim(_ uint16, _ string, options []config.Option) error {
	for _, opt := range options {
		name := strings.ToUpper(opt.Name)
		n, err := strconv.ParseUint(opt.EqualOpt, 10, 64)
		if err != nil {
			return errors.New("SIM option " + name + " requires a numeric value")
		}
		switch name {
		case "NSZE":
			Sim.NSZEBlocks = n
		case "BLOCKSIZE":
			Sim.BlockSize = uint32(n)
		case "MDTS":
			Sim.MDTS = uint8(n)
		default:
			return errors.New("unknown SIM option: " + name)
		}
	}
	return nil
}
