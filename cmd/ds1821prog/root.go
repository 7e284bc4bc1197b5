// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/GermanBionicSystems/ds1821/ds248x"
	"github.com/GermanBionicSystems/ds1821/w1"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const defaultGPIO = 17

// flags holds the command line flags.
type flags struct {
	// Bus
	gpio      int
	powerGPIO int
	uart      string
	i2c       string
	i2cAddr   uint16
	rom       string

	// Output
	readTOUT bool
	quick    bool
	verbose  bool

	// Continuous mode, temp and read only
	loop    int
	plot    string
	metrics string
}

// env is the state of one invocation: the flags and where the commands
// reach the outside world.
type env struct {
	flags

	device ds1821.Opts
	w1Dir  string
	stdout io.Writer
	stderr io.Writer
	color  bool
	open   func(e *env) (*hardware, error)
}

func newEnv() *env {
	fd := os.Stdout.Fd()
	return &env{
		device: ds1821.DefaultOpts,
		w1Dir:  w1.DevicesDir,
		stdout: colorable.NewColorableStdout(),
		stderr: os.Stderr,
		color:  isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
		open:   openHardware,
	}
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ds1821prog",
		Short: "DS1821 programmer",
		Long: `ds1821prog talks to a DS1821 thermostat on a 1-wire bus bit-banged on a
GPIO pin, through a DS9097 style UART adapter with --uart, or through a
DS2482/DS2483 I²C bus master with --i2c.

A DS1821 in thermostat mode does not answer ROM commands: function commands
are sent right after the reset pulse, so it must be alone on the bus. Use
"fix" to switch it back to 1-wire mode.

Accessing the GPIO pins usually requires root.`,
		SilenceUsage: true,
		Version:      "1.0.0",
	}
	pf := cmd.PersistentFlags()
	pf.IntVar(&e.gpio, "gpio", envInt("DS1821_GPIO", defaultGPIO), "GPIO pin for the 1-wire data line (env DS1821_GPIO)")
	pf.IntVar(&e.powerGPIO, "power-gpio", -1, "GPIO pin powering the DS1821 VDD, enables the automatic power cycle")
	pf.StringVar(&e.uart, "uart", "", "Serial port of a DS9097 style adapter, instead of --gpio")
	pf.StringVar(&e.i2c, "i2c", "", "I²C bus of a DS2482/DS2483 bus master, instead of --gpio")
	pf.Uint16Var(&e.i2cAddr, "ds248x-addr", ds248x.DefaultAddr, "I²C address of the DS2482/DS2483")
	pf.StringVar(&e.rom, "rom", "", `ROM code of a DS1821 in 1-wire mode, 16 hex digits in bus order, or "auto" to read it`)
	pf.BoolVar(&e.readTOUT, "read-tout", false, "Read the thermostat output state from the DQ pin")
	pf.BoolVarP(&e.quick, "quick", "q", false, "Minimal output: key=value lines, or just the temperature")
	pf.BoolVarP(&e.verbose, "verbose", "v", false, "Show progress and the 1-wire traffic on stderr")

	for _, a := range ds1821ctl.Actions() {
		cmd.AddCommand(newActionCmd(e, a))
	}
	cmd.AddCommand(newReadCmd(e))
	return cmd
}

// addLoopFlags adds the continuous mode flags.
func (e *env) addLoopFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&e.loop, "loop", 0, "Read continuously every N seconds until interrupted, 2 when N is omitted")
	f.Lookup("loop").NoOptDefVal = "2"
	f.StringVar(&e.plot, "plot", "", "With --loop, write a PNG chart of the readings on exit")
	f.StringVar(&e.metrics, "metrics-addr", "", "With --loop, serve Prometheus metrics on this address, e.g. :9121")
}

// loopValue takes the interval of "--loop N" from the first argument. The
// flag has an optional value, so the parser leaves N as an argument.
func (e *env) loopValue(cmd *cobra.Command, args []string) []string {
	if len(args) == 0 || !cmd.Flags().Changed("loop") {
		return args
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return args
	}
	e.loop = n
	return args[1:]
}

func (e *env) loopInterval() time.Duration {
	if e.loop < 1 {
		return time.Second
	}
	return time.Duration(e.loop) * time.Second
}

// dataLine names the data line in the messages.
func (e *env) dataLine() string {
	switch {
	case e.uart != "":
		return e.uart
	case e.i2c != "":
		return fmt.Sprintf("I²C %s@0x%02X", e.i2c, e.i2cAddr)
	}
	return fmt.Sprintf("GPIO%d", e.gpio)
}

func (e *env) printer() *printer {
	return &printer{w: e.stdout, color: e.color, line: e.dataLine()}
}

func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return v
	}
	return def
}
