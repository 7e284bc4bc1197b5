// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds9097 generates 1-wire time slots with a serial port, the way the
// DS9097 style adapters and the Maxim application note 214 do.
//
// The UART TX and RX lines are tied to the 1-wire line through an open-drain
// buffer. Each character sent starts with a low start bit; the echo received
// back tells what the line looked like while the character was on the wire:
//
//   - reset: 0xF0 at 9600 bauds, an echo other than 0xF0 is a presence pulse;
//   - write 1 and read: 0xFF at 115200 bauds, an echo of 0xFF reads a 1;
//   - write 0: 0x00 at 115200 bauds.
//
// Adapter implements bitbang.Transceiver; pass it to bitbang.New to get a
// onewire.Bus.
//
// Datasheet
//
// https://www.analog.com/en/resources/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
package ds9097

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"go.bug.st/serial"
	"periph.io/x/conn/v3"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// ReadTimeout bounds the wait for each echo. Default is 100ms.
	ReadTimeout time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ReadTimeout: 100 * time.Millisecond,
}

const (
	resetBaud = 9600
	slotBaud  = 115200
)

// Open opens the serial port name and returns an Adapter using it.
func Open(name string, opts *Opts) (*Adapter, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: slotBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("ds9097: %w", err)
	}
	a, err := New(p, name, opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return a, nil
}

// New returns an Adapter using an already open serial port.
func New(p serial.Port, name string, opts *Opts) (*Adapter, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	a := &Adapter{
		name: name,
		p:    p,
		mode: serial.Mode{
			BaudRate: slotBaud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
	if err := p.SetMode(&a.mode); err != nil {
		return nil, fmt.Errorf("ds9097: %w", err)
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		return nil, fmt.Errorf("ds9097: %w", err)
	}
	return a, nil
}

// Adapter is a 1-wire transceiver on a serial port.
//
// Adapter implements a persistent error model: once the serial port failed,
// all operations return the first error. A new Adapter must be opened to
// proceed.
type Adapter struct {
	name string
	p    serial.Port
	mode serial.Mode
	err  error
}

func (a *Adapter) String() string {
	return "DS9097{" + a.name + "}"
}

// Halt implements conn.Resource.
func (a *Adapter) Halt() error {
	return nil
}

// Close closes the serial port.
func (a *Adapter) Close() error {
	return a.p.Close()
}

// Reset implements bitbang.Transceiver.
func (a *Adapter) Reset() (bool, error) {
	a.setBaud(resetBaud)
	a.clear()
	echo := a.xfer(0xf0)
	a.setBaud(slotBaud)
	if a.err != nil {
		return false, a.err
	}
	switch {
	case echo == 0xf0:
		return false, nil
	case echo == 0x00:
		return false, shortedBusError("ds9097: bus has a short")
	case echo&0x0f != 0:
		return false, busError(fmt.Sprintf("ds9097: invalid reset echo 0x%02x", echo))
	}
	return true, nil
}

// WriteBit implements bitbang.Transceiver.
func (a *Adapter) WriteBit(bit byte) error {
	c := byte(0x00)
	if bit&1 != 0 {
		c = 0xff
	}
	a.xfer(c)
	return a.err
}

// ReadBit implements bitbang.Transceiver.
func (a *Adapter) ReadBit() (byte, error) {
	echo := a.xfer(0xff)
	if a.err != nil {
		return 0, a.err
	}
	if echo == 0xff {
		return 1, nil
	}
	return 0, nil
}

//

func (a *Adapter) setBaud(baud int) {
	if a.err != nil || a.mode.BaudRate == baud {
		return
	}
	a.mode.BaudRate = baud
	if err := a.p.SetMode(&a.mode); err != nil {
		a.err = fmt.Errorf("ds9097: %w", err)
	}
}

// clear discards stale characters.
func (a *Adapter) clear() {
	if a.err != nil {
		return
	}
	if err := a.p.ResetInputBuffer(); err != nil {
		a.err = fmt.Errorf("ds9097: %w", err)
	}
}

// xfer sends c and returns its echo.
func (a *Adapter) xfer(c byte) byte {
	if a.err != nil {
		return 0
	}
	if _, err := a.p.Write([]byte{c}); err != nil {
		a.err = fmt.Errorf("ds9097: %w", err)
		return 0
	}
	var buf [1]byte
	n, err := a.p.Read(buf[:])
	if err != nil {
		a.err = fmt.Errorf("ds9097: %w", err)
		return 0
	}
	if n != 1 {
		a.err = fmt.Errorf("ds9097: no echo from %s, is RX tied to TX?", a.name)
		return 0
	}
	return buf[0]
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ bitbang.Transceiver = &Adapter{}
var _ conn.Resource = &Adapter{}
