// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821ctl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"github.com/GermanBionicSystems/ds1821/ds1821"
	"periph.io/x/conn/v3/gpio"
)

// Report is the result of an action.
type Report interface {
	// Fields returns the machine readable form of the report, printed as
	// key=value lines.
	Fields() []Field
}

// Field is a key=value pair of a Report.
type Field struct {
	Key   string
	Value string
}

func (f Field) String() string {
	return f.Key + "=" + f.Value
}

// FamilyName returns the name of the 1-wire device family, or "" if unknown.
func FamilyName(family byte) string {
	switch family {
	case 0x00:
		return "none (likely a DS1821 in thermostat mode)"
	case 0x10:
		return "DS18S20"
	case ds1821.Family:
		return "DS1822 / DS1821 in 1-wire mode"
	case 0x28:
		return "DS18B20"
	case 0x3b:
		return "DS1825"
	case 0x42:
		return "DS28EA00"
	}
	return ""
}

// ScanReport is the result of Scan.
type ScanReport struct {
	Presence bool
	// ROM is the code returned by Read ROM, nil if the command failed.
	ROM    *bitbang.ROM
	ROMErr error
	// Devices are the codes assembled by Search ROM, including phantoms.
	Devices   []bitbang.ROM
	SearchErr error
	// Status is the status register read without ROM command.
	Status     *ds1821.Status
	StatusErr  error
	Thresholds *ds1821.Thresholds
}

// Valid returns the number of devices found with a valid code.
func (r *ScanReport) Valid() int {
	n := 0
	for _, d := range r.Devices {
		if d.Valid() {
			n++
		}
	}
	return n
}

// Phantoms returns the number of devices found with an invalid code.
func (r *ScanReport) Phantoms() int {
	return len(r.Devices) - r.Valid()
}

// ThermostatMode returns true when the results point to a DS1821 in
// thermostat mode: a presence pulse, no valid ROM code and a readable status.
func (r *ScanReport) ThermostatMode() bool {
	return r.Presence && r.Valid() == 0 && (r.ROM == nil || !r.ROM.Valid()) && r.Status != nil
}

// Fields implements Report.
func (r *ScanReport) Fields() []Field {
	f := []Field{{"presence", bit(r.Presence)}}
	if r.ROM != nil {
		f = append(f, Field{"rom", r.ROM.String()}, Field{"rom_valid", bit(r.ROM.Valid())})
	}
	f = append(f,
		Field{"devices", strconv.Itoa(len(r.Devices))},
		Field{"valid", strconv.Itoa(r.Valid())},
		Field{"phantom", strconv.Itoa(r.Phantoms())})
	if r.Status != nil {
		f = append(f, Field{"status", hex(*r.Status)})
	}
	return append(f, thresholdFields(r.Thresholds)...)
}

// ProbeReport is the result of Probe.
type ProbeReport struct {
	Status     ds1821.Status
	Thresholds *ds1821.Thresholds
	// TOUT is the level of the data line, nil when not read.
	TOUT *gpio.Level
}

// Fields implements Report.
func (r *ProbeReport) Fields() []Field {
	f := []Field{
		{"status", hex(r.Status)},
		{"done", bit(r.Status.Done())},
		{"thf", bit(r.Status.HighAlarm())},
		{"tlf", bit(r.Status.LowAlarm())},
		{"nvb", bit(r.Status.NVBusy())},
		{"oneshot", bit(r.Status.OneShot())},
	}
	f = append(f, thresholdFields(r.Thresholds)...)
	return append(f, toutFields(r.TOUT)...)
}

// Measurement is the result of Measure.
type Measurement struct {
	Time       time.Time
	Status     ds1821.Status
	Sample     ds1821.Sample
	Thresholds *ds1821.Thresholds
	TOUT       *gpio.Level
}

// Fields implements Report.
func (m *Measurement) Fields() []Field {
	f := []Field{
		{"temperature", strconv.Itoa(m.Sample.MilliCelsius())},
		{"thf", bit(m.Status.HighAlarm())},
		{"tlf", bit(m.Status.LowAlarm())},
	}
	f = append(f, thresholdFields(m.Thresholds)...)
	return append(f, toutFields(m.TOUT)...)
}

// TempReport is a Measurement reduced to the temperature.
type TempReport Measurement

// Fields implements Report.
func (t *TempReport) Fields() []Field {
	return []Field{{"temperature", strconv.FormatFloat(t.Sample.Celsius(), 'f', 2, 64)}}
}

// ThresholdReport is the result of SetThresholds.
type ThresholdReport struct {
	// High and Low are the values written, nil when left unchanged.
	High   *int8
	Low    *int8
	Before ds1821.Thresholds
	After  ds1821.Thresholds
}

// Verified returns true if the thresholds read back match the values
// written.
func (r *ThresholdReport) Verified() bool {
	return (r.High == nil || *r.High == r.After.High) && (r.Low == nil || *r.Low == r.After.Low)
}

// Fields implements Report.
func (r *ThresholdReport) Fields() []Field {
	return append(thresholdFields(&r.After), Field{"verified", bit(r.Verified())})
}

// Attempt is one status write of SetOneShot.
type Attempt struct {
	// Broadcast is true when the write used Skip ROM.
	Broadcast bool
	Written   ds1821.Status
	// Readback is the status read right after the write, nil if it failed.
	Readback *ds1821.Status
}

// ModeReport is the result of SetOneShot, and of the set-oneshot and fix
// actions.
type ModeReport struct {
	// Probe is set by the actions, which probe the device first.
	Probe    *ProbeReport
	Initial  ds1821.Status
	Attempts []Attempt
	// Final and FinalBroadcast are the status read back after the writes,
	// without and with Skip ROM. Nil when the read failed.
	Final          *ds1821.Status
	FinalBroadcast *ds1821.Status
	PowerCycled    bool
	// AfterCycle is the status read with Skip ROM after the power cycle.
	AfterCycle *ds1821.Status
}

// OneShot returns true if 1SHOT read back as set after the writes. The direct
// read is preferred, a device ignoring Skip ROM reads as 0xFF.
func (r *ModeReport) OneShot() bool {
	if r.Final != nil {
		return r.Final.OneShot()
	}
	return r.FinalBroadcast != nil && r.FinalBroadcast.OneShot()
}

// Fields implements Report.
func (r *ModeReport) Fields() []Field {
	f := []Field{{"initial", hex(r.Initial)}}
	if r.Final != nil {
		f = append(f, Field{"status", hex(*r.Final)})
	}
	if r.FinalBroadcast != nil {
		f = append(f, Field{"status_skip_rom", hex(*r.FinalBroadcast)})
	}
	return append(f,
		Field{"oneshot", bit(r.OneShot())},
		Field{"power_cycled", bit(r.PowerCycled)})
}

//

func thresholdFields(t *ds1821.Thresholds) []Field {
	if t == nil {
		return nil
	}
	return []Field{
		{"th", strconv.Itoa(int(t.High))},
		{"tl", strconv.Itoa(int(t.Low))},
	}
}

func toutFields(l *gpio.Level) []Field {
	if l == nil {
		return nil
	}
	return []Field{{"tout", bit(bool(*l))}}
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func hex(s ds1821.Status) string {
	return fmt.Sprintf("0x%02X", byte(s))
}

var (
	_ Report = &ScanReport{}
	_ Report = &ProbeReport{}
	_ Report = &Measurement{}
	_ Report = &TempReport{}
	_ Report = &ThresholdReport{}
	_ Report = &ModeReport{}
)
