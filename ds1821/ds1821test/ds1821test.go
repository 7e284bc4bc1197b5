// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1821test simulates a DS1821 on a bitbangtest.Wire.
package ds1821test

import (
	"github.com/GermanBionicSystems/ds1821/bitbang/bitbangtest"
	"github.com/GermanBionicSystems/ds1821/ds1821"
)

// Device is a simulated DS1821.
//
// It starts in thermostat mode: no ROM layer, function commands right after
// the reset pulse. Clear ROMLess on the embedded Slave to put it in 1-wire
// mode with the ROM code in Slave.ROM.
//
// A conversion completes instantly, setting DONE and the alarm flags from
// Temperature, TH and TL.
type Device struct {
	bitbangtest.Slave

	Temperature int8
	CountRemain uint8
	CountPerC   uint8
	TH          int8
	TL          int8
	Status      ds1821.Status
	// SkipROM makes the device in thermostat mode accept a leading Skip ROM
	// command. Otherwise the command is not understood and the device ignores
	// the transaction.
	SkipROM bool

	// Commands lists the function commands received, in order.
	Commands []byte
	// StatusWrites lists the values written to the status register.
	StatusWrites []ds1821.Status
	// PowerCycles counts calls to PowerCycle.
	PowerCycles int
}

// New returns a DS1821 in thermostat mode measuring 23.5625°C, with TH=28
// and TL=18.
func New() *Device {
	d := &Device{
		Temperature: 23,
		CountRemain: 3,
		CountPerC:   16,
		TH:          28,
		TL:          18,
		Status:      ds1821.Done,
	}
	d.ROM = [8]byte{0x22, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x15}
	d.ROMLess = true
	d.Function = d.function
	return d
}

// PowerCycle simulates removing and restoring VDD. Registers are kept, the
// conversion result is lost.
func (d *Device) PowerCycle() {
	d.PowerCycles++
	d.Status &^= ds1821.Done | ds1821.NVBusy
}

func (d *Device) function(rx []byte) []byte {
	if d.ROMLess && d.SkipROM && rx[0] == 0xcc {
		rx = rx[1:]
		if len(rx) == 0 {
			return nil
		}
	}
	cmd := rx[0]
	if len(rx) == 1 {
		d.Commands = append(d.Commands, cmd)
	}
	switch cmd {
	case 0xee:
		if len(rx) == 1 {
			d.convert()
		}
	case 0xaa:
		return []byte{byte(d.Temperature)}
	case 0xa0:
		return []byte{d.CountRemain}
	case 0xa9:
		return []byte{d.CountPerC}
	case 0xa1:
		return []byte{byte(d.TH)}
	case 0xa2:
		return []byte{byte(d.TL)}
	case 0xac:
		return []byte{byte(d.Status)}
	case 0x01:
		if len(rx) == 2 {
			d.TH = int8(rx[1])
		}
	case 0x02:
		if len(rx) == 2 {
			d.TL = int8(rx[1])
		}
	case 0x0c:
		if len(rx) == 2 {
			d.writeStatus(ds1821.Status(rx[1]))
		}
	}
	return nil
}

func (d *Device) convert() {
	d.Status |= ds1821.Done
	if d.Temperature >= d.TH {
		d.Status |= ds1821.HighAlarm
	}
	if d.Temperature <= d.TL {
		d.Status |= ds1821.LowAlarm
	}
}

func (d *Device) writeStatus(v ds1821.Status) {
	d.StatusWrites = append(d.StatusWrites, v)
	const config = ds1821.Polarity | ds1821.OneShot
	d.Status = d.Status&^config | v&config
	// The alarm flags can only be cleared.
	d.Status &^= (ds1821.HighAlarm | ds1821.LowAlarm) &^ v
}

var _ bitbangtest.Device = &Device{}
