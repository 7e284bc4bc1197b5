// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strconv"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/GermanBionicSystems/ds1821/ds248x"
	"github.com/GermanBionicSystems/ds1821/ds9097"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"
)

// hardware is the bus master and the optional power pin.
type hardware struct {
	bus   onewire.Bus
	power gpio.PinOut
	c     io.Closer
}

func (h *hardware) Close() error {
	// The power pin is left driven high.
	if h.c != nil {
		return h.c.Close()
	}
	return nil
}

// openHardware initializes the host drivers and opens the bus master
// selected by the flags.
func openHardware(e *env) (*hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, privilege(err)
	}
	var logger *log.Logger
	if e.verbose {
		logger = log.New(e.stderr, "  ", 0)
	}
	h := &hardware{}
	switch {
	case e.i2c != "":
		b, err := i2creg.Open(e.i2c)
		if err != nil {
			return nil, privilege(err)
		}
		opts := ds248x.DefaultOpts
		opts.Logger = logger
		d, err := ds248x.New(b, e.i2cAddr, &opts)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		h.bus, h.c = d, b
	case e.uart != "":
		opts := bitbang.DefaultOpts
		opts.Logger = logger
		a, err := ds9097.Open(e.uart, nil)
		if err != nil {
			return nil, privilege(err)
		}
		h.bus, h.c = bitbang.New(a, &opts), a
	default:
		opts := bitbang.DefaultOpts
		opts.Logger = logger
		p, err := pinByNumber(e.gpio)
		if err != nil {
			return nil, err
		}
		if h.bus, err = bitbang.NewGPIO(p, &opts); err != nil {
			return nil, privilege(err)
		}
	}
	if e.powerGPIO >= 0 {
		p, err := pinByNumber(e.powerGPIO)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		h.power = p
	}
	return h, nil
}

// config returns the controller configuration from the flags. A --rom of
// "auto" is resolved by resolveROM once the bus is open.
func (e *env) config() (*ds1821ctl.Config, error) {
	cfg := ds1821ctl.DefaultConfig
	cfg.Device = e.device
	cfg.ReadTOUT = e.readTOUT
	if e.verbose {
		cfg.Logger = log.New(e.stderr, "", 0)
	}
	if e.rom != "" && e.rom != "auto" {
		b, err := hex.DecodeString(e.rom)
		if err != nil || len(b) != 8 {
			return nil, fmt.Errorf("--rom %q: want 16 hex digits", e.rom)
		}
		var r bitbang.ROM
		copy(r[:], b)
		if err := r.Check(); err != nil {
			return nil, fmt.Errorf("--rom: %w", err)
		}
		cfg.Address = r.Address()
	}
	return &cfg, nil
}

// resolveROM reads the ROM code of the only device on bus for --rom auto.
func (e *env) resolveROM(bus onewire.Bus, cfg *ds1821ctl.Config) error {
	if e.rom != "auto" {
		return nil
	}
	r, err := ds1821ctl.Identify(bus)
	if err != nil {
		return fmt.Errorf("--rom auto: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Printf("ROM %s", r)
	}
	cfg.Address = r.Address()
	return nil
}

func pinByNumber(n int) (gpio.PinIO, error) {
	p := gpioreg.ByName(strconv.Itoa(n))
	if p == nil {
		return nil, fmt.Errorf("no GPIO%d on this host", n)
	}
	return p, nil
}

var errPrivilege = errors.New("insufficient privileges: run as root or grant access to the GPIO and serial devices")

// privilege marks permission errors.
func privilege(err error) error {
	var pe *serial.PortError
	if errors.Is(err, fs.ErrPermission) || (errors.As(err, &pe) && pe.Code() == serial.PermissionDenied) {
		return fmt.Errorf("%w: %w", errPrivilege, err)
	}
	return err
}
