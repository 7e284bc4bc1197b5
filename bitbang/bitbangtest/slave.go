// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbangtest

// Function handles function commands once a Slave is selected.
//
// It is called after every byte received with all the bytes received since
// the selection, and returns the bytes to send back. Returning nil keeps the
// slave listening. After sending, the slave ignores the bus until the next
// reset.
type Function func(rx []byte) []byte

type state int

const (
	idle state = iota // ignore the bus until the next reset
	romCmd
	matchROM
	function
	search
	send
)

// Slave is a simulated 1-wire slave implementing the ROM command layer.
type Slave struct {
	// ROM is the registration code in bus order.
	ROM [8]byte
	// ROMLess skips the ROM layer: the first byte after a reset is already a
	// function command.
	ROMLess bool
	// Alarm makes the slave take part in alarm searches.
	Alarm bool
	// Absent stops the slave from answering resets.
	Absent bool
	// Function handles function commands. Nil ignores them.
	Function Function

	state state
	bits  int // bits received in the current byte
	cur   byte
	rx    []byte
	tx    []byte
	txBit int
	next  state // state after sending
	pos   int   // search bit position
	phase int   // search triplet phase
}

// Reset implements Device.
func (s *Slave) Reset() bool {
	if s.Absent {
		s.state = idle
		return false
	}
	s.bits = 0
	s.cur = 0
	s.rx = s.rx[:0]
	s.state = romCmd
	if s.ROMLess {
		s.state = function
	}
	return true
}

// Slot implements Device.
func (s *Slave) Slot(written byte) byte {
	switch s.state {
	case send:
		bit := s.tx[s.txBit/8] >> uint(s.txBit%8) & 1
		s.txBit++
		if s.txBit == 8*len(s.tx) {
			s.state = s.next
		}
		return bit
	case search:
		bit := s.ROM[s.pos/8] >> uint(s.pos%8) & 1
		switch s.phase {
		case 0:
			s.phase++
			return bit
		case 1:
			s.phase++
			return bit ^ 1
		}
		s.phase = 0
		if written != bit {
			s.state = idle
			return 1
		}
		if s.pos++; s.pos == 64 {
			s.state = function
		}
		return 1
	case romCmd, matchROM, function:
		s.cur |= (written & 1) << uint(s.bits)
		if s.bits++; s.bits == 8 {
			c := s.cur
			s.bits = 0
			s.cur = 0
			s.receive(c)
		}
	}
	return 1
}

func (s *Slave) receive(c byte) {
	switch s.state {
	case romCmd:
		switch c {
		case 0x33:
			s.reply(s.ROM[:], function)
		case 0xcc:
			s.state = function
		case 0x55:
			s.state = matchROM
		case 0xf0:
			s.startSearch()
		case 0xec:
			if s.Alarm {
				s.startSearch()
			} else {
				s.state = idle
			}
		default:
			s.state = idle
		}
	case matchROM:
		s.rx = append(s.rx, c)
		if len(s.rx) < 8 {
			return
		}
		s.state = idle
		if string(s.rx) == string(s.ROM[:]) {
			s.state = function
		}
		s.rx = s.rx[:0]
	case function:
		s.rx = append(s.rx, c)
		if s.Function == nil {
			return
		}
		if out := s.Function(s.rx); out != nil {
			s.reply(out, idle)
		}
	}
}

func (s *Slave) reply(b []byte, next state) {
	if len(b) == 0 {
		s.state = next
		return
	}
	s.tx = append(s.tx[:0], b...)
	s.txBit = 0
	s.next = next
	s.state = send
}

func (s *Slave) startSearch() {
	s.pos = 0
	s.phase = 0
	s.state = search
}

var _ Device = &Slave{}
