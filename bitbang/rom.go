// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/GermanBionicSystems/ds1821/common"
	"periph.io/x/conn/v3/onewire"
)

// ROM commands.
const (
	CmdReadROM     = 0x33
	CmdMatchROM    = 0x55
	CmdSkipROM     = 0xcc
	CmdSearchROM   = 0xf0
	CmdAlarmSearch = 0xec
)

// DefaultMaxDevices is the discovery cap used when none is given.
const DefaultMaxDevices = 16

// ErrChecksum is returned when a ROM code that must be trusted fails its CRC.
var ErrChecksum = errors.New("bitbang: ROM code CRC mismatch")

// ROM is a 64-bit registration code in the order it travels on the bus:
// family code, 48-bit serial number, CRC.
type ROM [8]byte

// FromAddress converts a periph 1-wire address to a ROM code.
func FromAddress(a onewire.Address) ROM {
	var r ROM
	for i := range r {
		r[i] = byte(a >> uint(8*i))
	}
	return r
}

// Family returns the family code, the first byte on the wire.
func (r ROM) Family() byte {
	return r[0]
}

// CRCValid reports whether the last byte is the CRC8 of the first seven.
func (r ROM) CRCValid() bool {
	return common.CheckCRC(r[:])
}

// Valid reports whether the code passes the CRC and has a non-zero family.
//
// An all-zero family is what a device that does not take part in the
// protocol produces, and the all-zero code happens to pass the CRC.
func (r ROM) Valid() bool {
	return r.CRCValid() && r.Family() != 0
}

// Phantom reports whether the code is not a real registration code, as
// assembled from a device that does not implement the search protocol or from
// a collision.
func (r ROM) Phantom() bool {
	return !r.Valid()
}

// Check returns an error wrapping ErrChecksum if the CRC fails, or an error
// if the family code is zero.
func (r ROM) Check() error {
	if !r.CRCValid() {
		return fmt.Errorf("%w: %s", ErrChecksum, r)
	}
	if r.Family() == 0 {
		return fmt.Errorf("bitbang: ROM code %s has no family", r)
	}
	return nil
}

// Address returns the code as a periph 1-wire address, usable with
// onewire.Dev.
func (r ROM) Address() onewire.Address {
	var a onewire.Address
	for i := range r {
		a |= onewire.Address(r[i]) << uint(8*i)
	}
	return a
}

// String returns the 16 hex digits of the code in bus order.
func (r ROM) String() string {
	return strings.ToUpper(hex.EncodeToString(r[:]))
}

func (r *ROM) bit(pos int) byte {
	return r[pos/8] >> uint(pos%8) & 1
}

func (r *ROM) setBit(pos int, v byte) {
	if v != 0 {
		r[pos/8] |= 1 << uint(pos%8)
	} else {
		r[pos/8] &^= 1 << uint(pos%8)
	}
}

// ReadROM issues a Read ROM command and returns the 8 bytes that follow.
//
// The code is not validated: with several devices on the bus the bits are
// ANDed together and the CRC fails. Use ROM.Check or Identify.
func (b *Bus) ReadROM() (ROM, error) {
	var r ROM
	if err := b.Tx([]byte{CmdReadROM}, r[:], onewire.WeakPullup); err != nil {
		return ROM{}, err
	}
	b.logf("read rom %s", r)
	return r, nil
}

// Identify reads the code of the only device on the bus. A code failing its
// CRC returns an error wrapping ErrChecksum.
func (b *Bus) Identify() (ROM, error) {
	r, err := b.ReadROM()
	if err != nil {
		return ROM{}, err
	}
	if err := r.Check(); err != nil {
		return ROM{}, err
	}
	return r, nil
}

// Discover enumerates up to max ROM codes with the Search ROM command.
//
// Every assembled code is returned in discovery order, valid or not, which
// makes Discover useful to diagnose devices that do not implement the search
// protocol. A pass where both the bit and its complement read as 1 means no
// device is left and ends the discovery. Losing the presence pulse after the
// first pass ends it as well.
//
// An error implementing onewire.NoDevicesError is returned if no device
// answers the first reset. On other errors the codes found so far are
// returned with the error.
func (b *Bus) Discover(max int) ([]ROM, error) {
	if max <= 0 {
		return nil, errors.New("bitbang: discovery cap must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var found []ROM
	s := discovery{last: -1}
	for len(found) < max {
		present, err := b.reset()
		if err != nil {
			return found, err
		}
		if !present {
			if len(found) == 0 {
				return nil, noDevicesError("bitbang: no presence pulse")
			}
			break
		}
		if err := b.writeByte(CmdSearchROM); err != nil {
			return found, err
		}
		complete, err := s.pass(b.t)
		if err != nil {
			return found, err
		}
		if !complete {
			break
		}
		b.logf("search: found %s", s.rom)
		found = append(found, s.rom)
		if s.last < 0 {
			break
		}
	}
	return found, nil
}

// discovery is the state of one Search ROM enumeration.
type discovery struct {
	rom  ROM // code assembled in the current pass, seeded by the previous one
	last int // bit position of the last 0 taken on a collision, -1 if none
}

// pass runs the 64 triplets of one Search ROM pass after the command has been
// sent. It returns false when no device answered a triplet.
func (s *discovery) pass(t Transceiver) (bool, error) {
	next := -1
	for pos := 0; pos < 64; pos++ {
		id, err := t.ReadBit()
		if err != nil {
			return false, err
		}
		cmp, err := t.ReadBit()
		if err != nil {
			return false, err
		}
		if id == 1 && cmp == 1 {
			return false, nil
		}
		var dir byte
		switch {
		case id != cmp:
			dir = id
		case pos == s.last:
			dir = 1
		case pos > s.last:
			next = pos
		default:
			if dir = s.rom.bit(pos); dir == 0 {
				next = pos
			}
		}
		s.rom.setBit(pos, dir)
		if err := t.WriteBit(dir); err != nil {
			return false, err
		}
	}
	s.last = next
	return true, nil
}
