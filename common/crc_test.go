// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"testing"

	"periph.io/x/conn/v3/onewire"
)

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: nil, result: 0x00},
		{bytes: []byte("123456789"), result: 0xa1},
		{bytes: []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}, result: 0x74},
		{bytes: []byte{0xe0, 0x01, 0x00, 0x00, 0x3f, 0xff, 0x10, 0x10}, result: 0x3f},
		{bytes: []byte{0x22, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, result: 0x95},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=0x%02x received 0x%02x", test.bytes, test.result, res)
		}
	}
}

func TestCRC8_matchesOnewire(t *testing.T) {
	buf := make([]byte, 0, 256)
	for i := 0; i < 256; i++ {
		buf = append(buf, byte(i*37+11))
		if got, want := CRC8(buf), onewire.CalcCRC(buf); got != want {
			t.Fatalf("len %d: got 0x%02x, onewire.CalcCRC 0x%02x", len(buf), got, want)
		}
	}
}

func TestCheckCRC(t *testing.T) {
	rom := []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74}
	if !CheckCRC(rom) {
		t.Fatal("valid ROM code rejected")
	}
	rom[3] ^= 0x10
	if CheckCRC(rom) {
		t.Fatal("corrupted ROM code accepted")
	}
	if CheckCRC(nil) {
		t.Fatal("empty buffer accepted")
	}
	// A CRC appended to its data always produces a zero remainder.
	data := []byte{0x10, 0x20, 0x30}
	if CRC8(append(data, CRC8(data))) != 0 {
		t.Fatal("expected zero remainder")
	}
}
