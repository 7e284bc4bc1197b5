// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821

import (
	"errors"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// Family is the family code of a DS1821 in 1-wire mode. The DS1822 shares
// it.
const Family = 0x22

// Function commands.
const (
	cmdStartConvert = 0xee
	cmdStopConvert  = 0x22
	cmdReadTemp     = 0xaa
	cmdReadCounter  = 0xa0
	cmdReadSlope    = 0xa9
	cmdReadTH       = 0xa1
	cmdReadTL       = 0xa2
	cmdWriteTH      = 0x01
	cmdWriteTL      = 0x02
	cmdReadStatus   = 0xac
	cmdWriteStatus  = 0x0c
	cmdSkipROM      = 0xcc
)

// Status is the content of the status/configuration register.
type Status byte

// Status register bits.
const (
	Done      Status = 0x80 // temperature conversion complete
	HighAlarm Status = 0x40 // THF, temperature reached TH
	LowAlarm  Status = 0x20 // TLF, temperature reached TL
	NVBusy    Status = 0x10 // NVB, EEPROM write in progress
	Polarity  Status = 0x02 // POL, TOUT active high
	OneShot   Status = 0x01 // 1SHOT, one conversion per start command
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{Done, "DONE"},
	{HighAlarm, "THF"},
	{LowAlarm, "TLF"},
	{NVBusy, "NVB"},
	{Polarity, "POL"},
	{OneShot, "1SHOT"},
}

// Done reports whether the last conversion completed.
func (s Status) Done() bool { return s&Done != 0 }

// HighAlarm reports whether the temperature reached TH since the flag was
// last cleared.
func (s Status) HighAlarm() bool { return s&HighAlarm != 0 }

// LowAlarm reports whether the temperature reached TL since the flag was
// last cleared.
func (s Status) LowAlarm() bool { return s&LowAlarm != 0 }

// NVBusy reports whether an EEPROM write is in progress.
func (s Status) NVBusy() bool { return s&NVBusy != 0 }

// Polarity reports whether TOUT is active high.
func (s Status) Polarity() bool { return s&Polarity != 0 }

// OneShot reports whether the device performs a single conversion per start
// command instead of converting continuously.
func (s Status) OneShot() bool { return s&OneShot != 0 }

// String returns the register in hex followed by the names of the bits set,
// e.g. "0x81[DONE|1SHOT]".
func (s Status) String() string {
	var names []string
	for _, n := range statusNames {
		if s&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return "0x" + strconv.FormatUint(uint64(s)|0x100, 16)[1:] + "[" + strings.Join(names, "|") + "]"
}

// Threshold selects one of the two thermostat trip points.
type Threshold int

const (
	// High is the TH register.
	High Threshold = iota
	// Low is the TL register.
	Low
)

func (t Threshold) String() string {
	if t == High {
		return "TH"
	}
	return "TL"
}

// Threshold range in °C.
const (
	MinThreshold = -55
	MaxThreshold = 125
)

// ErrThresholdRange is returned when writing a threshold outside of
// MinThreshold..MaxThreshold.
var ErrThresholdRange = errors.New("ds1821: threshold out of range -55..125")

// CheckThreshold validates a threshold value in °C.
func CheckThreshold(v int) (int8, error) {
	if v < MinThreshold || v > MaxThreshold {
		return 0, ErrThresholdRange
	}
	return int8(v), nil
}

// Thresholds holds both thermostat trip points, in °C.
type Thresholds struct {
	High int8
	Low  int8
}

// Inverted reports whether the low threshold is not below the high one,
// which makes the thermostat output meaningless.
func (t Thresholds) Inverted() bool {
	return t.Low >= t.High
}

// Sample is the result of a conversion as read from the device.
type Sample struct {
	Raw         int8  // integer temperature register, °C
	CountRemain uint8 // counter register
	CountPerC   uint8 // slope register
}

// Unconverted reports whether the slope register reads zero, which happens
// before any conversion completed. The slope is taken as 1 in the
// computations so they stay defined.
func (s Sample) Unconverted() bool {
	return s.CountPerC == 0
}

func (s Sample) slope() int {
	if s.CountPerC == 0 {
		return 1
	}
	return int(s.CountPerC)
}

// Celsius returns the high resolution temperature.
func (s Sample) Celsius() float64 {
	c := s.slope()
	return float64(s.Raw) - 0.25 + float64(c-int(s.CountRemain))/float64(c)
}

// MilliCelsius returns the high resolution temperature in thousandths of a
// degree. The fractional part is truncated toward zero.
func (s Sample) MilliCelsius() int {
	c := s.slope()
	return int(s.Raw)*1000 - 250 + (c-int(s.CountRemain))*1000/c
}

// Temperature returns the high resolution temperature.
func (s Sample) Temperature() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(s.MilliCelsius())*physic.MilliKelvin
}
