// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"periph.io/x/conn/v3/gpio"
)

// Transceiver generates the 1-wire reset pulse and time slots.
//
// Bits are passed as bytes holding 0 or 1, the same representation
// onewire.TripletResult uses.
type Transceiver interface {
	// Reset issues a reset pulse and reports whether any device answered with
	// a presence pulse.
	Reset() (bool, error)
	// WriteBit emits a write time slot for the least significant bit of bit.
	WriteBit(bit byte) error
	// ReadBit emits a read time slot and returns the bit seen on the line.
	ReadBit() (byte, error)
}

// Standard speed timings, in microseconds.
const (
	tResetLow      = 480 // reset pulse
	tPresenceWait  = 70  // release to presence sample
	tResetRelease  = 410 // presence sample to end of reset
	tWrite1Low     = 6
	tWrite1Release = 64
	tWrite0Low     = 60
	tWrite0Release = 10
	tReadLow       = 6
	tReadSample    = 9  // release to sample
	tReadRelease   = 55 // sample to end of slot
	tRecovery      = 2  // between slots
)

// Slots implements Transceiver by timing each phase of the reset pulse and of
// the time slots on a Line.
type Slots struct {
	l Line
}

// NewSlots returns a Transceiver operating l.
func NewSlots(l Line) *Slots {
	return &Slots{l: l}
}

func (s *Slots) String() string {
	if str, ok := s.l.(interface{ String() string }); ok {
		return str.String()
	}
	return "line"
}

// Halt implements conn.Resource. It releases the line.
func (s *Slots) Halt() error {
	s.l.Release()
	return s.l.Err()
}

// Q implements onewire.Pins when the underlying line is a pin.
func (s *Slots) Q() gpio.PinIO {
	if p, ok := s.l.(interface{ Q() gpio.PinIO }); ok {
		return p.Q()
	}
	return nil
}

// Reset implements Transceiver.
//
// A low sample in the presence window means at least one device pulled the
// line down.
func (s *Slots) Reset() (bool, error) {
	s.l.DriveLow()
	s.l.Delay(tResetLow)
	s.l.Release()
	s.l.Delay(tPresenceWait)
	present := s.l.Sample() == gpio.Low
	s.l.Delay(tResetRelease)
	if err := s.l.Err(); err != nil {
		return false, err
	}
	return present, nil
}

// WriteBit implements Transceiver.
func (s *Slots) WriteBit(bit byte) error {
	if bit&1 != 0 {
		s.l.DriveLow()
		s.l.Delay(tWrite1Low)
		s.l.Release()
		s.l.Delay(tWrite1Release)
	} else {
		s.l.DriveLow()
		s.l.Delay(tWrite0Low)
		s.l.Release()
		s.l.Delay(tWrite0Release)
	}
	s.l.Delay(tRecovery)
	return s.l.Err()
}

// ReadBit implements Transceiver.
func (s *Slots) ReadBit() (byte, error) {
	s.l.DriveLow()
	s.l.Delay(tReadLow)
	s.l.Release()
	s.l.Delay(tReadSample)
	var bit byte
	if s.l.Sample() == gpio.High {
		bit = 1
	}
	s.l.Delay(tReadRelease)
	s.l.Delay(tRecovery)
	if err := s.l.Err(); err != nil {
		return 0, err
	}
	return bit, nil
}
