// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Line is an open-drain 1-wire data line.
//
// The line is either released, letting the pull-up resistor bring it high, or
// driven low. It is never driven high.
type Line interface {
	// Release stops driving the line.
	Release()
	// DriveLow pulls the line low.
	DriveLow()
	// Sample returns the current level of the line.
	Sample() gpio.Level
	// Delay waits for us microseconds without giving up the CPU.
	Delay(us int)
	// Err returns the first error encountered while operating the line.
	Err() error
}

// PinLine implements Line on a GPIO pin.
//
// PinLine implements a persistent error model: the first error returned by
// the pin is kept, all later operations become no-ops and Err returns it. A
// new PinLine must be created to proceed.
type PinLine struct {
	p   gpio.PinIO
	err error
}

// NewPinLine returns a Line driving p. The line is released on return.
func NewPinLine(p gpio.PinIO) (*PinLine, error) {
	if p == nil {
		return nil, errors.New("bitbang: no pin")
	}
	l := &PinLine{p: p}
	l.Release()
	if l.err != nil {
		return nil, fmt.Errorf("bitbang: failed to release %s: %w", p, l.err)
	}
	return l, nil
}

func (l *PinLine) String() string {
	return l.p.String()
}

// Q implements onewire.Pins.
func (l *PinLine) Q() gpio.PinIO {
	return l.p
}

// Release implements Line by turning the pin into an input with pull-up.
func (l *PinLine) Release() {
	if l.err != nil {
		return
	}
	l.err = l.p.In(gpio.PullUp, gpio.NoEdge)
}

// DriveLow implements Line.
func (l *PinLine) DriveLow() {
	if l.err != nil {
		return
	}
	l.err = l.p.Out(gpio.Low)
}

// Sample implements Line. It returns gpio.High, an idle line, once an error
// occurred.
func (l *PinLine) Sample() gpio.Level {
	if l.err != nil {
		return gpio.High
	}
	return l.p.Read()
}

// Delay implements Line.
func (l *PinLine) Delay(us int) {
	spin(time.Duration(us) * time.Microsecond)
}

// Err implements Line.
func (l *PinLine) Err() error {
	return l.err
}

// spin busy-waits on the monotonic clock. Sleeping hands the thread to the
// scheduler, whose wake-up latency is larger than a time slot.
func spin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
