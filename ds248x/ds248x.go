// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x drives a DS2482-100, DS2482-800 or DS2483 I²C to 1-wire
// bus master.
//
// The chip generates the time slots itself, so the host needs no real-time
// access to a GPIO pin. Dev implements onewire.Bus and, like bitbang.Bus,
// Reset for the presence check of the programmer actions.
//
// The data line is not reachable from the host: TOUT of a DS1821 in
// thermostat mode cannot be read through this bus master.
//
// Datasheets
//
// https://datasheets.maximintegrated.com/en/ds/DS2482-100.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS2483.pdf
package ds248x

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
)

// PupOhm is the passive pull-up resistance of the DS2483.
type PupOhm uint8

const (
	R500Ω  PupOhm = 4
	R1000Ω PupOhm = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// PassivePullup disables the active pull-up.
	PassivePullup bool

	// Only available on the DS2483. The closest possible value is used.
	ResetLow       time.Duration // 440µs..740µs
	PresenceDetect time.Duration // 58µs..76µs
	Write0Low      time.Duration // 52µs..70µs
	Write0Recovery time.Duration // 2750ns..25250ns
	PullupRes      PupOhm

	// Channel is the 1-wire channel of a DS2482-800, 0..7.
	Channel int

	// Logger receives a trace of every reset and byte on the bus. Leave nil
	// to disable tracing.
	Logger *log.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// DefaultAddr is the I²C address with both address pins low.
const DefaultAddr = 0x18

// New returns a bus master talking over I²C at addr, one of 0x18 to 0x1B.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if addr < 0x18 || addr > 0x1b {
		return nil, fmt.Errorf("ds248x: invalid I²C address %#x, want 0x18..0x1b", addr)
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Channel < 0 || opts.Channel > 7 {
		return nil, fmt.Errorf("ds248x: invalid channel %d", opts.Channel)
	}
	d := &Dev{c: &i2c.Dev{Bus: b, Addr: addr}, log: opts.Logger}
	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a DS248x bus master. It implements onewire.Bus.
//
// Dev implements a persistent error model: an I²C error or a chip that stays
// busy puts it into an error state, and every later call returns that error.
// A new Dev must be created to proceed. Errors on the 1-wire side implement
// onewire.BusError and are not persistent.
type Dev struct {
	mu     sync.Mutex
	c      conn.Conn
	chip   chip
	conf   byte          // device configuration register
	tReset time.Duration // duration of a 1-wire reset
	tSlot  time.Duration // duration of a 1-wire time slot
	log    *log.Logger
	err    error
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.chip, d.c)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Reset issues a 1-wire reset and reports whether a device answered with a
// presence pulse.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// Tx implements onewire.Bus.
//
// It issues a reset, returns an error implementing onewire.NoDevicesError if
// no device answered, then writes w and reads len(r) bytes. A strong pull-up
// is applied after the last byte when power is onewire.StrongPullup.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return noDevicesError("ds248x: no device present")
	}
	for i, b := range w {
		if power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0 {
			d.strongPullup()
		}
		d.tx([]byte{cmd1WWrite, b}, nil)
		d.waitIdle(8 * d.tSlot)
		d.logf("write 0x%02X", b)
	}
	for i := range r {
		if power == onewire.StrongPullup && i == len(r)-1 {
			d.strongPullup()
		}
		d.tx([]byte{cmd1WRead}, nil)
		d.waitIdle(8 * d.tSlot)
		d.tx([]byte{cmdSetReadPtr, regRDR}, r[i:i+1])
		d.logf("read 0x%02X", r[i])
	}
	return d.err
}

// Search implements onewire.Bus.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(d, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher with the chip's triplet
// command.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var dir byte
	if direction != 0 {
		dir = 0x80
	}
	d.tx([]byte{cmd1WTriplet, dir}, nil)
	status := d.waitIdle(3 * d.tSlot)
	tr := onewire.TripletResult{
		GotZero: status&stSBR == 0,
		GotOne:  status&stTSB == 0,
		Taken:   status >> 7,
	}
	return tr, d.err
}

// SelectChannel selects the 1-wire channel of a DS2482-800. Other chips have a
// single channel, 0.
func (d *Dev) SelectChannel(ch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectChannel(ch)
}

// Channel returns the selected 1-wire channel.
func (d *Dev) Channel() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip != ds2482x800 {
		return 0, nil
	}
	var b [1]byte
	if err := d.c.Tx([]byte{cmdSetReadPtr, regCSR}, b[:]); err != nil {
		return 0, fmt.Errorf("ds248x: read channel: %w", err)
	}
	for i, c := range channelRead {
		if c == b[0] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("ds248x: unexpected channel register %#x", b[0])
}

//

func (d *Dev) init(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery

	if err := d.c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: reset: %w", err)
	}
	var st [1]byte
	if err := d.c.Tx([]byte{cmdSetReadPtr, regStatus}, st[:]); err != nil {
		return fmt.Errorf("ds248x: read status: %w", err)
	}
	if st[0] != stRST|stLL {
		return fmt.Errorf("ds248x: unexpected status %#x after reset, want 0x18", st[0])
	}

	// Standard speed, no strong pull-up, no power down. The upper nibble is
	// the one's complement of the lower one; only the lower reads back.
	d.conf = 0xe1
	if opts.PassivePullup {
		d.conf ^= 0x11
	}
	var dcr [1]byte
	if err := d.c.Tx([]byte{cmdWriteConfig, d.conf}, dcr[:]); err != nil {
		return fmt.Errorf("ds248x: write configuration: %w", err)
	}
	if dcr[0] != d.conf&0x0f {
		return fmt.Errorf("ds248x: configuration reads back %#x, wrote %#x", dcr[0], d.conf)
	}

	// Only the DS2483 has a port configuration register and only the
	// DS2482-800 a channel selection register.
	switch {
	case d.c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil:
		d.chip = ds2483
		w := []byte{cmdAdjPort,
			byte(0x00 + (opts.ResetLow/time.Microsecond-430)/20&0x0f),
			byte(0x20 + (opts.PresenceDetect/time.Microsecond-55)/2&0x0f),
			byte(0x40 + (opts.Write0Low/time.Microsecond-51)/2&0x0f),
			byte(0x60 + ((opts.Write0Recovery-1250)/2500+5)&0x0f),
			byte(0x80 + opts.PullupRes&0x0f),
		}
		if err := d.c.Tx(w, nil); err != nil {
			return fmt.Errorf("ds248x: adjust port: %w", err)
		}
	case d.c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil:
		d.chip = ds2482x800
		if err := d.selectChannel(opts.Channel); err != nil {
			return err
		}
	default:
		d.chip = ds2482x100
	}
	if opts.Channel != 0 && d.chip != ds2482x800 {
		return fmt.Errorf("ds248x: %s has no channel %d", d.chip, opts.Channel)
	}
	return nil
}

func (d *Dev) selectChannel(ch int) error {
	if ch < 0 || ch > 7 {
		return fmt.Errorf("ds248x: invalid channel %d", ch)
	}
	if d.chip != ds2482x800 {
		if ch != 0 {
			return fmt.Errorf("ds248x: %s has no channel %d", d.chip, ch)
		}
		return nil
	}
	var b [1]byte
	if err := d.c.Tx([]byte{cmdChannelSelect, channelWrite[ch]}, b[:]); err != nil {
		return fmt.Errorf("ds248x: select channel: %w", err)
	}
	if b[0] != channelRead[ch] {
		return fmt.Errorf("ds248x: channel %d reads back %#x", ch, b[0])
	}
	return nil
}

func (d *Dev) reset() (bool, error) {
	d.tx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return false, d.err
	}
	if status&stSD != 0 {
		return false, shortedBusError("ds248x: 1-wire bus shorted")
	}
	present := status&stPPD != 0
	d.logf("reset: presence %t", present)
	return present, nil
}

func (d *Dev) strongPullup() {
	d.tx([]byte{cmdWriteConfig, d.conf&0xbf | 0x04}, nil)
}

// tx runs an I²C transaction and persists its error.
func (d *Dev) tx(w, r []byte) {
	if d.err != nil {
		return
	}
	if err := d.c.Tx(w, r); err != nil {
		d.err = fmt.Errorf("ds248x: %w", err)
	}
}

// waitIdle sleeps for delay, then polls the status register until the 1-wire
// side is idle and returns the last status read. The chip staying busy for
// more than 3ms is a persistent error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	deadline := time.Now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		var status [1]byte
		d.tx(nil, status[:])
		if d.err != nil || status[0]&st1WB == 0 {
			return status[0]
		}
		if time.Now().After(deadline) {
			d.err = errors.New("ds248x: timeout waiting for the 1-wire cycle to finish")
			return 0
		}
		sleep(delay / 10)
	}
}

func (d *Dev) logf(format string, v ...interface{}) {
	if d.log != nil {
		d.log.Printf("onewire: "+format, v...)
	}
}

type chip int

const (
	ds2482x100 chip = iota
	ds2482x800
	ds2483
)

func (c chip) String() string {
	switch c {
	case ds2482x800:
		return "DS2482-800"
	case ds2483:
		return "DS2483"
	}
	return "DS2482-100"
}

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

var sleep = time.Sleep

const (
	cmdReset         = 0xf0 // reset the chip
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (DS2483)
	cmdChannelSelect = 0xc3 // channel select (DS2482-800)
	cmd1WReset       = 0xb4 // 1-wire reset
	cmd1WWrite       = 0xa5 // 1-wire write byte
	cmd1WRead        = 0x96 // 1-wire read byte
	cmd1WTriplet     = 0x78 // 1-wire triplet, two reads and a write

	regStatus = 0xf0 // status register
	regRDR    = 0xe1 // read data register
	regPCR    = 0xb4 // port configuration register (DS2483)
	regCSR    = 0xd2 // channel selection register (DS2482-800)

	// Status register bits.
	st1WB = 0x01 // 1-wire busy
	stPPD = 0x02 // presence pulse detected
	stSD  = 0x04 // short detected
	stLL  = 0x08 // logic level of the line
	stRST = 0x10 // device reset
	stSBR = 0x20 // single bit result
	stTSB = 0x40 // triplet second bit
)

// DS2482-800 channel selection codes, as written and as read back.
var (
	channelWrite = [8]byte{0xf0, 0xe1, 0xd2, 0xc3, 0xb4, 0xa5, 0x96, 0x87}
	channelRead  = [8]byte{0xb8, 0xb1, 0xaa, 0xa3, 0x9c, 0x95, 0x8e, 0x87}
)

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
var _ onewire.NoDevicesError = noDevicesError("")
var _ onewire.ShortedBusError = shortedBusError("")
