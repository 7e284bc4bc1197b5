// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/GermanBionicSystems/ds1821/bitbang/bitbangtest"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/onewire"
)

// Valid ROM codes.
var (
	romDS18B20 = ROM{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74}
	romDS1822a = ROM{0x22, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x15}
	romDS18S20 = ROM{0x10, 0x5a, 0x3c, 0x00, 0x08, 0x00, 0x00, 0x9a}
	romDS1822b = ROM{0x22, 0x01, 0x02, 0x03, 0x04, 0x05, 0x07, 0x4b}
)

// newWire returns a bus over a simulated wire with the given devices.
func newWire(devs ...bitbangtest.Device) (*Bus, *bitbangtest.Wire) {
	w := &bitbangtest.Wire{Devices: devs}
	return New(NewSlots(w), nil), w
}

// statusSlave returns a ROM-less slave answering the status read command.
func statusSlave(status byte) *bitbangtest.Slave {
	return &bitbangtest.Slave{
		ROMLess: true,
		Function: func(rx []byte) []byte {
			if len(rx) == 1 && rx[0] == 0xac {
				return []byte{status}
			}
			return nil
		},
	}
}

func TestBus_Tx(t *testing.T) {
	b, w := newWire(statusSlave(0x81))
	var r [1]byte
	if err := b.Tx([]byte{0xac}, r[:], onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0x81 {
		t.Fatalf("got 0x%02x", r[0])
	}
	if w.Resets != 1 || w.Slots != 16 {
		t.Fatalf("unexpected resets %d slots %d", w.Resets, w.Slots)
	}
	if s := b.String(); s != "bitbang{wire}" {
		t.Fatal(s)
	}
}

func TestBus_Tx_noPresence(t *testing.T) {
	b, w := newWire()
	err := b.Tx([]byte{0xac}, make([]byte, 1), onewire.WeakPullup)
	var nd onewire.NoDevicesError
	if !errors.As(err, &nd) || !nd.NoDevices() {
		t.Fatalf("expected no devices error, got %v", err)
	}
	if w.Slots != 0 {
		t.Fatalf("no slot may follow a missing presence pulse, got %d", w.Slots)
	}
}

func TestBus_Tx_error(t *testing.T) {
	b, _ := newWire(statusSlave(0x81))
	b.t.(*Slots).l.(*bitbangtest.Wire).Fail = errors.New("pin failure")
	if err := b.Tx([]byte{0xac}, make([]byte, 1), onewire.WeakPullup); err == nil {
		t.Fatal("expected error")
	}
}

func TestBus_bytes(t *testing.T) {
	var got []byte
	s := &bitbangtest.Slave{
		ROMLess: true,
		Function: func(rx []byte) []byte {
			got = append(got[:0], rx...)
			return nil
		},
	}
	b, _ := newWire(s)
	if present, err := b.Reset(); err != nil || !present {
		t.Fatalf("expected presence: %t %v", present, err)
	}
	want := make([]byte, 256)
	for i := range want {
		want[i] = byte(i)
		if err := b.WriteByte(want[i]); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bytes not sent least significant bit first (-want +got):\n%s", diff)
	}
	// Nobody drives the line anymore.
	if c, err := b.ReadByte(); err != nil || c != 0xff {
		t.Fatalf("idle line must read 0xFF: 0x%02x %v", c, err)
	}
}

func TestBus_ReadByte(t *testing.T) {
	for v := 0; v < 256; v++ {
		b, _ := newWire(statusSlave(byte(v)))
		var r [1]byte
		if err := b.Tx([]byte{0xac}, r[:], onewire.WeakPullup); err != nil {
			t.Fatal(err)
		}
		if r[0] != byte(v) {
			t.Fatalf("read 0x%02x, want 0x%02x", r[0], v)
		}
	}
}

func TestBus_collision(t *testing.T) {
	// Bits read from two devices answering together are ANDed.
	b, _ := newWire(statusSlave(0xf0), statusSlave(0x3c))
	var r [1]byte
	if err := b.Tx([]byte{0xac}, r[:], onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0x30 {
		t.Fatalf("got 0x%02x", r[0])
	}
}

func TestBus_ReadROM(t *testing.T) {
	b, _ := newWire(&bitbangtest.Slave{ROM: romDS1822a})
	r, err := b.ReadROM()
	if err != nil {
		t.Fatal(err)
	}
	if r != romDS1822a || !r.Valid() {
		t.Fatalf("got %s", r)
	}
}

func TestBus_ReadROM_collision(t *testing.T) {
	b, _ := newWire(&bitbangtest.Slave{ROM: romDS1822a}, &bitbangtest.Slave{ROM: romDS18B20})
	r, err := b.ReadROM()
	if err != nil {
		t.Fatal(err)
	}
	if r.Valid() {
		t.Fatalf("ANDed codes must fail the CRC: %s", r)
	}
}

func TestBus_Identify(t *testing.T) {
	b, _ := newWire(&bitbangtest.Slave{ROM: romDS1822a})
	if r, err := b.Identify(); err != nil || r != romDS1822a {
		t.Fatal(r, err)
	}
	b, _ = newWire(&bitbangtest.Slave{ROM: romDS1822a}, &bitbangtest.Slave{ROM: romDS18B20})
	if _, err := b.Identify(); !errors.Is(err, ErrChecksum) {
		t.Fatal(err)
	}
}

func TestBus_ReadROM_romLess(t *testing.T) {
	// A ROM-less device takes 0x33 as a function command and stays silent.
	b, _ := newWire(statusSlave(0x00))
	r, err := b.ReadROM()
	if err != nil {
		t.Fatal(err)
	}
	if r != (ROM{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}) || r.Valid() {
		t.Fatalf("got %s", r)
	}
}

func TestBus_Search(t *testing.T) {
	b, _ := newWire(
		&bitbangtest.Slave{ROM: romDS1822a},
		&bitbangtest.Slave{ROM: romDS18B20},
		&bitbangtest.Slave{ROM: romDS18S20, Alarm: true},
	)
	addrs, err := b.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	want := []onewire.Address{romDS18S20.Address(), romDS18B20.Address(), romDS1822a.Address()}
	if diff := cmp.Diff(want, addrs); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	addrs, err = b.Search(true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]onewire.Address{romDS18S20.Address()}, addrs); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBus_Discover(t *testing.T) {
	all := []ROM{romDS18S20, romDS18B20, romDS1822a, romDS1822b}
	var devs []bitbangtest.Device
	for i := len(all) - 1; i >= 0; i-- {
		devs = append(devs, &bitbangtest.Slave{ROM: all[i]})
	}
	b, _ := newWire(devs...)
	found, err := b.Discover(DefaultMaxDevices)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(all, found); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	for _, r := range found {
		if !r.Valid() {
			t.Fatalf("%s: invalid", r)
		}
	}

	found, err = b.Discover(2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(all[:2], found); diff != "" {
		t.Fatalf("cap not honored (-want +got):\n%s", diff)
	}
}

func TestBus_Discover_phantom(t *testing.T) {
	// Codes failing the CRC are reported, not dropped.
	bad := ROM{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	b, _ := newWire(&bitbangtest.Slave{ROM: bad}, &bitbangtest.Slave{ROM: romDS1822a})
	found, err := b.Discover(DefaultMaxDevices)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ROM{bad, romDS1822a}, found); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if !found[0].Phantom() || found[1].Phantom() {
		t.Fatal("misclassified codes")
	}
}

func TestBus_Discover_noSearch(t *testing.T) {
	// A device present but not taking part in the search leaves both bits high.
	b, _ := newWire(statusSlave(0x00))
	found, err := b.Discover(DefaultMaxDevices)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("got %v", found)
	}
}

func TestBus_Discover_empty(t *testing.T) {
	b, _ := newWire(&bitbangtest.Slave{ROM: romDS1822a, Absent: true})
	found, err := b.Discover(DefaultMaxDevices)
	var nd onewire.NoDevicesError
	if !errors.As(err, &nd) || found != nil {
		t.Fatalf("expected no devices error, got %v, %v", found, err)
	}
	if _, err := b.Discover(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestBus_SearchTriplet(t *testing.T) {
	b, _ := newWire(&bitbangtest.Slave{ROM: romDS1822a}, &bitbangtest.Slave{ROM: romDS18B20})
	if err := b.Tx([]byte{CmdSearchROM}, nil, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	// Bit 0: 0x22 and 0x28 both have 0.
	tr, err := b.SearchTriplet(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(onewire.TripletResult{GotZero: true, Taken: 0}, tr); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Bit 1: 0x22 has 1, 0x28 has 0: collision, the direction decides.
	if tr, err = b.SearchTriplet(1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(onewire.TripletResult{GotZero: true, GotOne: true, Taken: 1}, tr); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Bit 2: only 0x22 is left, with a 0.
	if tr, err = b.SearchTriplet(1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(onewire.TripletResult{GotZero: true, Taken: 0}, tr); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBus_logger(t *testing.T) {
	var buf bytes.Buffer
	w := &bitbangtest.Wire{Devices: []bitbangtest.Device{statusSlave(0x81)}}
	b := New(NewSlots(w), &Opts{Logger: log.New(&buf, "", 0)})
	if err := b.Tx([]byte{0xac}, make([]byte, 1), onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	want := "onewire: reset: presence detected\nonewire: write 0xAC\nonewire: read 0x81\n"
	if s := buf.String(); s != want {
		t.Fatalf("unexpected trace:\n%s", s)
	}
}

func TestNewGPIO(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO4", Num: 4}
	b, err := NewGPIO(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Q() != p {
		t.Fatal("unexpected pin")
	}
	if s := b.String(); s != "bitbang{GPIO4(4)}" {
		t.Fatal(s)
	}
	// The pin reads high through the simulated pull-up: no presence.
	if present, err := b.Reset(); err != nil || present {
		t.Fatalf("unexpected presence: %t %v", present, err)
	}
	if err := b.Halt(); err != nil {
		t.Fatal(err)
	}
	if p.L != gpio.High {
		t.Fatal("line not released")
	}
}
