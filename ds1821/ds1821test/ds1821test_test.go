// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821test

import (
	"testing"
	"time"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"github.com/GermanBionicSystems/ds1821/bitbang/bitbangtest"
	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/google/go-cmp/cmp"
)

var fast = &ds1821.Opts{CommitDelay: time.Nanosecond, ConversionDelay: time.Nanosecond}

func TestDevice_thermostatMode(t *testing.T) {
	sim := New()
	sim.TH = 20
	bus := bitbang.New(bitbang.NewSlots(&bitbangtest.Wire{Devices: []bitbangtest.Device{sim}}), nil)
	d := ds1821.New(bus, fast)

	if err := d.StartConversion(); err != nil {
		t.Fatal(err)
	}
	s, err := d.ReadSample()
	if err != nil {
		t.Fatal(err)
	}
	if s.MilliCelsius() != 23562 {
		t.Fatal(s)
	}
	st, err := d.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if st != ds1821.Done|ds1821.HighAlarm {
		t.Fatal(st)
	}
	// Clearing THF and setting 1SHOT.
	if err := d.WriteStatus(ds1821.OneShot); err != nil {
		t.Fatal(err)
	}
	if sim.Status != ds1821.Done|ds1821.OneShot {
		t.Fatal(sim.Status)
	}
	if err := d.WriteThreshold(ds1821.Low, -20); err != nil {
		t.Fatal(err)
	}
	if sim.TL != -20 {
		t.Fatal(sim.TL)
	}
	if diff := cmp.Diff([]byte{0xee, 0xaa, 0xa0, 0xa9, 0xac, 0x0c, 0x02}, sim.Commands); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Skip ROM is not understood by default.
	if st, err = d.ReadStatusBroadcast(); err != nil || st != 0xff {
		t.Fatalf("%s %v", st, err)
	}
	sim.SkipROM = true
	if st, err = d.ReadStatusBroadcast(); err != nil || st != ds1821.Done|ds1821.OneShot {
		t.Fatalf("%s %v", st, err)
	}
	sim.PowerCycle()
	if sim.Status != ds1821.OneShot || sim.PowerCycles != 1 {
		t.Fatal(sim.Status)
	}
}

func TestDevice_oneWireMode(t *testing.T) {
	sim := New()
	sim.ROMLess = false
	bus := bitbang.New(bitbang.NewSlots(&bitbangtest.Wire{Devices: []bitbangtest.Device{sim}}), nil)
	found, err := bus.Discover(bitbang.DefaultMaxDevices)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != bitbang.ROM(sim.ROM) {
		t.Fatal(found)
	}
	d, err := ds1821.NewAddressed(bus, found[0].Address(), fast)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := d.ReadThreshold(ds1821.High); err != nil || v != 28 {
		t.Fatalf("%d %v", v, err)
	}
}
