// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Logger receives a trace of every reset and byte on the bus. Leave nil
	// to disable tracing.
	Logger *log.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{}

// New returns a 1-wire bus master using t to generate the time slots.
//
// The returned Bus implements onewire.Bus and can be used to access devices
// on the bus.
func New(t Transceiver, opts *Opts) *Bus {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Bus{t: t, log: opts.Logger}
}

// NewGPIO returns a 1-wire bus master bit-banging the open-drain line wired to
// p. The line is released on return.
func NewGPIO(p gpio.PinIO, opts *Opts) (*Bus, error) {
	l, err := NewPinLine(p)
	if err != nil {
		return nil, err
	}
	return New(NewSlots(l), opts), nil
}

// Bus is a software 1-wire bus master.
//
// Only one transaction runs at a time; concurrent calls are serialized.
type Bus struct {
	mu  sync.Mutex
	t   Transceiver
	log *log.Logger
}

func (b *Bus) String() string {
	if s, ok := b.t.(fmt.Stringer); ok {
		return "bitbang{" + s.String() + "}"
	}
	return "bitbang"
}

// Halt implements conn.Resource. It releases the line when the transceiver
// supports it.
func (b *Bus) Halt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.t.(conn.Resource); ok {
		return r.Halt()
	}
	return nil
}

// Q implements onewire.Pins. It returns nil when the transceiver does not
// operate a GPIO pin.
func (b *Bus) Q() gpio.PinIO {
	if p, ok := b.t.(onewire.Pins); ok {
		return p.Q()
	}
	return nil
}

// Reset issues a reset pulse and reports whether any device answered with a
// presence pulse.
func (b *Bus) Reset() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return b.reset()
}

// WriteByte sends c least significant bit first.
func (b *Bus) WriteByte(c byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return b.writeByte(c)
}

// ReadByte reads 8 bits, least significant bit first.
//
// A bit reads as 1 unless a device pulls the line low, so with no device
// answering ReadByte returns 0xFF.
func (b *Bus) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return b.readByte()
}

// Tx implements onewire.Bus.
//
// It issues a reset, returns an error implementing onewire.NoDevicesError if
// no device answered, then writes w and reads len(r) bytes.
//
// The line has no strong pull-up driver: power is ignored and the line is
// left to the pull-up resistor in all cases.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if present, err := b.reset(); err != nil {
		return err
	} else if !present {
		return noDevicesError("bitbang: no presence pulse")
	}
	for _, c := range w {
		if err := b.writeByte(c); err != nil {
			return err
		}
	}
	for i := range r {
		c, err := b.readByte()
		if err != nil {
			return err
		}
		r[i] = c
	}
	return nil
}

// Search implements onewire.Bus.
//
// It uses periph's search algorithm, which fails on the first ROM code with
// an invalid CRC. Use Discover to collect every code instead.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(b, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher.
//
// When both the bit and its complement read as 1 no device is left in the
// search and nothing is written; onewire.Search reports the condition.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tr := onewire.TripletResult{}
	id, err := b.t.ReadBit()
	if err != nil {
		return tr, err
	}
	cmp, err := b.t.ReadBit()
	if err != nil {
		return tr, err
	}
	tr.GotZero = id == 0
	tr.GotOne = cmp == 0
	if id == 1 && cmp == 1 {
		return tr, nil
	}
	tr.Taken = direction & 1
	if id != cmp {
		tr.Taken = id
	}
	return tr, b.t.WriteBit(tr.Taken)
}

//

func (b *Bus) reset() (bool, error) {
	present, err := b.t.Reset()
	if err != nil {
		return false, err
	}
	if present {
		b.logf("reset: presence detected")
	} else {
		b.logf("reset: no presence")
	}
	return present, nil
}

func (b *Bus) writeByte(c byte) error {
	for i := 0; i < 8; i++ {
		if err := b.t.WriteBit(c >> uint(i) & 1); err != nil {
			return err
		}
	}
	b.logf("write 0x%02X", c)
	return nil
}

func (b *Bus) readByte() (byte, error) {
	var c byte
	for i := 0; i < 8; i++ {
		bit, err := b.t.ReadBit()
		if err != nil {
			return 0, err
		}
		c |= bit << uint(i)
	}
	b.logf("read 0x%02X", c)
	return c, nil
}

func (b *Bus) logf(format string, v ...interface{}) {
	if b.log != nil {
		b.log.Printf("onewire: "+format, v...)
	}
}

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

var _ conn.Resource = &Bus{}
var _ onewire.Bus = &Bus{}
var _ onewire.BusSearcher = &Bus{}
var _ onewire.Pins = &Bus{}
var _ onewire.NoDevicesError = noDevicesError("")
var _ Transceiver = &Slots{}
