// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbangtest simulates an open-drain 1-wire line and the slaves
// attached to it, to test software bus masters without hardware.
//
// Wire keeps a virtual microsecond clock advanced by Delay, classifies every
// low pulse the master generates as a reset or a time slot, and lets the
// attached devices answer within the windows real devices use. A master that
// samples outside those windows reads an idle line.
package bitbangtest

import (
	"periph.io/x/conn/v3/gpio"
)

// Device is a slave attached to a Wire.
type Device interface {
	// Reset is called at the end of a reset pulse. It returns true to answer
	// with a presence pulse.
	Reset() bool
	// Slot is called when the master releases the line at the end of the low
	// phase of a time slot. written is the bit the master wrote; a read slot is
	// indistinguishable from writing a 1. The returned bit is what the device
	// leaves on the line for the rest of the slot: 0 holds the line low.
	Slot(written byte) byte
}

// Timing windows of the simulated devices, in microseconds.
const (
	ResetMin      = 480 // shortest low pulse seen as a reset
	Write1Max     = 15  // longest low pulse seen as a 1
	PresenceStart = 15  // presence pulse start after the release
	PresenceEnd   = 135 // presence pulse end after the release
	DataValid     = 15  // device data hold time from the start of a slot
)

// Wire implements bitbang.Line with simulated devices.
type Wire struct {
	Devices []Device
	// Fail is returned by Err to simulate a failing pin.
	Fail error

	// Resets and Slots count the reset pulses and time slots seen.
	Resets int
	Slots  int

	now        int  // virtual clock in µs
	low        bool // master drives the line
	lowAt      int  // start of the current low phase
	releasedAt int
	presence   bool // a device answered the last reset
	held       bool // a device holds the line low in the current slot
}

// Now returns the virtual clock in microseconds.
func (w *Wire) Now() int {
	return w.now
}

// Release implements bitbang.Line.
func (w *Wire) Release() {
	if !w.low {
		return
	}
	w.low = false
	w.releasedAt = w.now
	d := w.now - w.lowAt
	if d >= ResetMin {
		w.Resets++
		w.presence = false
		for _, dev := range w.Devices {
			if dev.Reset() {
				w.presence = true
			}
		}
		return
	}
	w.Slots++
	var written byte
	if d < Write1Max {
		written = 1
	}
	for _, dev := range w.Devices {
		if dev.Slot(written) == 0 {
			w.held = true
		}
	}
}

// DriveLow implements bitbang.Line.
func (w *Wire) DriveLow() {
	if w.low {
		return
	}
	w.low = true
	w.lowAt = w.now
	w.presence = false
	w.held = false
}

// Sample implements bitbang.Line.
func (w *Wire) Sample() gpio.Level {
	if w.low {
		return gpio.Low
	}
	since := w.now - w.releasedAt
	if w.presence && since >= PresenceStart && since <= PresenceEnd {
		return gpio.Low
	}
	if w.held && w.now-w.lowAt <= DataValid {
		return gpio.Low
	}
	return gpio.High
}

// Delay implements bitbang.Line by advancing the virtual clock.
func (w *Wire) Delay(us int) {
	w.now += us
}

// Err implements bitbang.Line.
func (w *Wire) Err() error {
	return w.Fail
}

func (w *Wire) String() string {
	return "wire"
}
