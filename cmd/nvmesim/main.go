/*
   NVMe SCSI bridge - simulator CLI.

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

// Command nvmesim brings up a Controller against the in-host-memory
// simdma backend and offers an interactive console for issuing SCSI
// CDBs against it, for development and manual exercise of the engine
// without real PCI hardware.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"

	"github.com/brandfoss/nvmescsi/config/configparser"
	"github.com/brandfoss/nvmescsi/config/driverconfig"
	"github.com/brandfoss/nvmescsi/engine/controller"
	"github.com/brandfoss/nvmescsi/engine/dma/simdma"
	"github.com/brandfoss/nvmescsi/util/logger"
)

var log *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Debug logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	log = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: level}, optDebug))
	slog.SetDefault(log)

	if *optConfig != "" {
		if err := configparser.LoadConfigFile(*optConfig); err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}
	cfg := driverconfig.Controller

	backend := simdma.New(driverconfig.Sim.NSZEBlocks, driverconfig.Sim.BlockSize, driverconfig.Sim.MDTS)

	ctx := context.Background()
	ctrl, err := controller.NewController(ctx, cfg, backend, log)
	if err != nil {
		log.Error("controller bring-up failed", "error", err)
		os.Exit(1)
	}

	console(ctx, ctrl)

	if err := ctrl.Shutdown(context.Background()); err != nil {
		log.Error("shutdown", "error", err)
	}
}

func console(ctx context.Context, ctrl *controller.Controller) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) []string {
		return completeCmd(s)
	})

	for {
		cmd, err := line.Prompt("nvmesim> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				return
			}
			log.Error("reading command", "error", err)
			return
		}
		line.AppendHistory(cmd)

		quit, err := dispatch(ctx, ctrl, cmd)
		if err != nil {
			fmt.Println("error: " + err.Error())
		}
		if quit {
			return
		}
	}
}
