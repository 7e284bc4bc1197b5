// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821

import (
	"math"
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestSample(t *testing.T) {
	var data = []struct {
		s           Sample
		celsius     float64
		milli       int
		unconverted bool
	}{
		{Sample{23, 3, 16}, 23.5625, 23562, false},
		{Sample{-10, 12, 16}, -10, -10000, false},
		{Sample{-55, 16, 16}, -55.25, -55250, false},
		{Sample{125, 0, 16}, 125.75, 125750, false},
		// Counter above the slope.
		{Sample{20, 20, 16}, 19.5, 19500, false},
		// Truncated toward zero, both signs.
		{Sample{23, 5, 3}, 22.083333333333332, 22084, false},
		{Sample{0, 1, 3}, 0.41666666666666663, 416, false},
		// Zero slope is taken as 1.
		{Sample{25, 0, 0}, 25.75, 25750, true},
	}
	for i, line := range data {
		if c := line.s.Celsius(); math.Abs(c-line.celsius) > 1e-9 {
			t.Errorf("#%d: Celsius() = %g, expected %g", i, c, line.celsius)
		}
		if m := line.s.MilliCelsius(); m != line.milli {
			t.Errorf("#%d: MilliCelsius() = %d, expected %d", i, m, line.milli)
		}
		if u := line.s.Unconverted(); u != line.unconverted {
			t.Errorf("#%d: Unconverted() = %t", i, u)
		}
		want := physic.ZeroCelsius + physic.Temperature(line.milli)*physic.MilliKelvin
		if tmp := line.s.Temperature(); tmp != want {
			t.Errorf("#%d: Temperature() = %s, expected %s", i, tmp, want)
		}
	}
}

func TestStatus(t *testing.T) {
	s := Status(0xc1)
	if !s.Done() || !s.HighAlarm() || s.LowAlarm() || s.NVBusy() || s.Polarity() || !s.OneShot() {
		t.Fatalf("unexpected bits %s", s)
	}
	var data = []struct {
		s   Status
		str string
	}{
		{0x00, "0x00[]"},
		{0x81, "0x81[DONE|1SHOT]"},
		{0xff, "0xff[DONE|THF|TLF|NVB|POL|1SHOT]"},
		{0x22, "0x22[TLF|POL]"},
	}
	for _, line := range data {
		if str := line.s.String(); str != line.str {
			t.Errorf("%q != %q", str, line.str)
		}
	}
}

func TestThresholds(t *testing.T) {
	if (Thresholds{High: 30, Low: 20}).Inverted() {
		t.Fatal("30/20 is not inverted")
	}
	if !(Thresholds{High: 20, Low: 20}).Inverted() {
		t.Fatal("equal thresholds are inverted")
	}
	if !(Thresholds{High: -5, Low: 10}).Inverted() {
		t.Fatal("-5/10 is inverted")
	}
	for _, v := range []int{-55, 0, 125} {
		if b, err := CheckThreshold(v); err != nil || int(b) != v {
			t.Errorf("CheckThreshold(%d) = %d, %v", v, b, err)
		}
	}
	for _, v := range []int{-56, 126, 1000} {
		if _, err := CheckThreshold(v); err != ErrThresholdRange {
			t.Errorf("CheckThreshold(%d) = %v", v, err)
		}
	}
	if High.String() != "TH" || Low.String() != "TL" {
		t.Fatal("unexpected threshold names")
	}
}
