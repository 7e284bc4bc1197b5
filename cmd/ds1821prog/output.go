// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/GermanBionicSystems/ds1821/screen1d"
	"periph.io/x/conn/v3/gpio"
)

const gaugeWidth = 40

// ANSI attributes.
const (
	bold   = "1"
	red    = "1;31"
	green  = "32"
	yellow = "1;33"
)

// printer renders the reports for humans.
type printer struct {
	w     io.Writer
	color bool
	// line names the data line in the messages.
	line string
}

func (p *printer) printf(format string, v ...interface{}) {
	_, _ = fmt.Fprintf(p.w, format, v...)
}

func (p *printer) paint(attr, s string) string {
	if !p.color {
		return s
	}
	return "\033[" + attr + "m" + s + "\033[0m"
}

func (p *printer) title(s string) {
	p.printf("\n%s\n\n", p.paint(bold, "=== "+s+" ==="))
}

func (p *printer) banner() {
	s := "DS1821 programmer on " + p.line
	p.printf("%s\n%s\n", s, strings.Repeat("─", len([]rune(s))))
}

// fields prints the key=value form of r.
func (p *printer) fields(r ds1821ctl.Report) {
	for _, f := range r.Fields() {
		p.printf("%s\n", f)
	}
}

// report prints r. quiet selects the key=value form, or the bare
// temperature for a TempReport.
func (p *printer) report(r ds1821ctl.Report, quiet bool) {
	if quiet {
		if t, ok := r.(*ds1821ctl.TempReport); ok {
			p.printf("%.2f\n", t.Sample.Celsius())
			return
		}
		p.fields(r)
		return
	}
	switch r := r.(type) {
	case *ds1821ctl.ScanReport:
		p.scan(r)
	case *ds1821ctl.ProbeReport:
		p.title("Probing DS1821 on " + p.line)
		p.probe(r)
	case *ds1821ctl.TempReport:
		p.temp((*ds1821ctl.Measurement)(r))
	case *ds1821ctl.ThresholdReport:
		p.thresholds(r)
	case *ds1821ctl.ModeReport:
		p.mode(r)
	default:
		p.fields(r)
	}
}

func (p *printer) status(s ds1821.Status) {
	p.printf("  Status register: 0x%02X\n", byte(s))
	flag := func(name string, bit int, on bool, yes, no string) {
		v, desc := 0, no
		if on {
			v, desc = 1, yes
		}
		p.printf("    %-5s (bit %d): %d  %s\n", name, bit, v, desc)
	}
	flag("DONE", 7, s.Done(), "conversion complete", "conversion in progress")
	flag("THF", 6, s.HighAlarm(), p.paint(red, "HIGH alarm tripped"), "no high alarm")
	flag("TLF", 5, s.LowAlarm(), p.paint(red, "LOW alarm tripped"), "no low alarm")
	flag("NVB", 4, s.NVBusy(), "EEPROM write in progress", "EEPROM idle")
	flag("POL", 1, s.Polarity(), "thermostat output active-high", "thermostat output active-low")
	flag("1SHOT", 0, s.OneShot(), "one-shot mode", "continuous mode")
}

func (p *printer) alarmThresholds(t *ds1821.Thresholds) {
	if t != nil {
		p.printf("\n  Alarm thresholds: TH=%d°C  TL=%d°C\n", t.High, t.Low)
	}
}

func (p *printer) tout(l *gpio.Level) {
	if l == nil {
		return
	}
	s := "LOW (inactive)"
	if *l == gpio.High {
		s = "HIGH (active)"
	}
	p.printf("  TOUT (DQ/%s): %s\n", p.line, s)
}

func (p *printer) scan(r *ds1821ctl.ScanReport) {
	p.title("Scanning 1-wire bus on " + p.line)
	p.printf("  1. Presence check\n")
	p.printf("     Presence pulse detected, at least one device on the bus.\n\n")

	p.printf("  2. Read ROM (single device command)\n")
	switch {
	case r.ROM == nil:
		p.printf("     Failed: %v\n", r.ROMErr)
	case r.ROM.Valid():
		p.printf("     Single device found:\n")
		p.rom(*r.ROM)
	default:
		p.printf("     Garbled ROM (collision of several devices, or thermostat mode):\n")
		p.rom(*r.ROM)
	}

	p.printf("\n  3. Search ROM (multi-device enumeration)\n")
	if r.SearchErr != nil {
		p.printf("     Search stopped: %v\n", r.SearchErr)
	}
	if len(r.Devices) == 0 {
		p.printf("     No device found by Search ROM.\n")
		p.printf("     A DS1821 in thermostat mode does not answer ROM commands.\n")
	} else {
		p.printf("     Found %d device(s):\n", len(r.Devices))
		for i, d := range r.Devices {
			p.printf("     [%d]", i+1)
			p.rom(d)
		}
		if n := r.Phantoms(); n != 0 {
			p.printf("\n     %s\n", p.paint(yellow, fmt.Sprintf("%d phantom device(s), likely DS1821s in thermostat mode driving the bus.", n)))
		}
		if n := r.Valid(); n != 0 {
			p.printf("\n     %d valid 1-wire device(s) found.\n", n)
		}
	}

	p.printf("\n  4. Direct status read (thermostat mode, no ROM command)\n")
	p.printf("     With several devices answering, the bits are ANDed.\n")
	if r.Status != nil {
		p.status(*r.Status)
		p.alarmThresholds(r.Thresholds)
	} else {
		p.printf("     Failed: %v\n", r.StatusErr)
	}

	p.printf("\n  Summary\n  ───────\n")
	p.printf("  Presence:        YES\n")
	p.printf("  ROM devices:     %d (%d valid, %d phantom)\n", len(r.Devices), r.Valid(), r.Phantoms())
	if r.ThermostatMode() {
		p.printf("  Thermostat mode: likely\n")
	}
	p.printf("\n  Next steps:\n")
	p.printf("    ds1821prog fix     attempt to reprogram to 1-wire mode\n")
	p.printf("    ds1821prog temp    read the temperature\n")
}

func (p *printer) rom(r bitbang.ROM) {
	crc := p.paint(green, "ok")
	if !r.CRCValid() {
		crc = p.paint(red, "BAD")
	}
	name := ds1821ctl.FamilyName(r.Family())
	if name == "" {
		name = "unknown family"
	}
	p.printf("     %s  (family 0x%02X, CRC %s) %s\n", r, r.Family(), crc, name)
}

func (p *printer) probe(r *ds1821ctl.ProbeReport) {
	p.status(r.Status)
	p.alarmThresholds(r.Thresholds)
	p.tout(r.TOUT)
}

func (p *printer) temp(m *ds1821ctl.Measurement) {
	p.title("Reading temperature from DS1821")
	if !m.Status.Done() {
		p.printf("  %s\n", p.paint(yellow, "Warning: DONE bit not set, the conversion may not be complete."))
	}
	s := m.Sample
	p.printf("  ┌─────────────────────────────────────┐\n")
	p.printf("  │  Integer temp:   %4d °C             │\n", s.Raw)
	p.printf("  │  COUNT_REMAIN:   %4d                │\n", s.CountRemain)
	p.printf("  │  COUNT_PER_C:    %4d                │\n", s.CountPerC)
	p.printf("  │  Hi-res temp:    %7.2f °C          │\n", s.Celsius())
	p.printf("  │  Millidegrees:   %6d m°C          │\n", s.MilliCelsius())
	p.printf("  └─────────────────────────────────────┘\n")
	if m.Status.HighAlarm() {
		p.printf("  %s\n", p.paint(red, "*** HIGH alarm flag set!"))
	}
	if m.Status.LowAlarm() {
		p.printf("  %s\n", p.paint(red, "*** LOW alarm flag set!"))
	}
	p.tout(m.TOUT)
	p.gauge(m)
}

// reading prints one line of the continuous mode.
func (p *printer) reading(m *ds1821ctl.Measurement, quiet bool) {
	if quiet {
		p.printf("%.2f\n", m.Sample.Celsius())
		return
	}
	p.printf("  [%s]  %.2f °C  (%d m°C)", m.Time.Format("2006-01-02 15:04:05"), m.Sample.Celsius(), m.Sample.MilliCelsius())
	if m.Status.HighAlarm() {
		p.printf("  %s", p.paint(red, "THF"))
	}
	if m.Status.LowAlarm() {
		p.printf("  %s", p.paint(red, "TLF"))
	}
	p.printf("\n")
	p.gauge(m)
}

// gauge draws the temperature against the thresholds on a colour terminal.
func (p *printer) gauge(m *ds1821ctl.Measurement) {
	if !p.color || m.Thresholds == nil {
		return
	}
	d, err := screen1d.New(&screen1d.Opts{X: gaugeWidth, W: p.w})
	if err != nil {
		return
	}
	t := m.Thresholds
	g := screen1d.Gauge{
		Min:  float64(t.Low) - 10,
		Max:  float64(t.High) + 10,
		Low:  float64(t.Low),
		High: float64(t.High),
	}
	// The display starts with a carriage return, the range goes after it.
	_ = d.Draw(d.Bounds(), g.Image(gaugeWidth, m.Sample.Celsius()), image.Point{})
	p.printf("%d..%d°C", int(g.Min), int(g.Max))
	_ = d.Halt()
}

func (p *printer) thresholds(r *ds1821ctl.ThresholdReport) {
	p.title("DS1821 thermostat thresholds")
	p.printf("  Current:  TH=%d°C  TL=%d°C\n", r.Before.High, r.Before.Low)
	var written []string
	if r.High != nil {
		written = append(written, fmt.Sprintf("TH=%d°C", *r.High))
	}
	if r.Low != nil {
		written = append(written, fmt.Sprintf("TL=%d°C", *r.Low))
	}
	p.printf("  Written:  %s\n", strings.Join(written, "  "))
	p.printf("  Verified: TH=%d°C  TL=%d°C\n", r.After.High, r.After.Low)
	if !r.Verified() {
		p.printf("  %s\n", p.paint(red, "Error: read back differs from the value written."))
	}
	if r.After.Inverted() {
		p.printf("  %s\n", p.paint(yellow, "Warning: TL >= TH, the thermostat will not operate correctly."))
	}
}

func (p *printer) mode(r *ds1821ctl.ModeReport) {
	if r.Probe != nil {
		p.title("Probing DS1821 on " + p.line)
		p.probe(r.Probe)
	}
	p.title("Setting DS1821 to 1-wire / one-shot mode")
	p.printf("  Current status (direct, ANDed if several devices answer): 0x%02X\n", byte(r.Initial))
	for i, a := range r.Attempts {
		how := "direct write (no ROM command)"
		if a.Broadcast {
			how = "Skip ROM + write"
		}
		p.printf("\n  Attempt %d: %s of 0x%02X\n", i+1, how, byte(a.Written))
		if a.Readback == nil {
			p.printf("  Read back failed\n")
			continue
		}
		p.printf("  Read back: 0x%02X  1SHOT=%d POL=%d\n", byte(*a.Readback), b2i(a.Readback.OneShot()), b2i(a.Readback.Polarity()))
	}
	p.printf("\n  Final read back:\n")
	if r.Final != nil {
		p.printf("  Direct:       0x%02X\n", byte(*r.Final))
	}
	if r.FinalBroadcast != nil {
		p.printf("  Via Skip ROM: 0x%02X\n", byte(*r.FinalBroadcast))
	}
	if r.OneShot() {
		p.printf("  %s\n", p.paint(green, "1SHOT is set."))
	} else {
		p.printf("  %s\n", p.paint(yellow, "1SHOT did not read back as set."))
	}
	p.printf("\n  With several devices on the bus the status reads are ANDed: one device\n")
	p.printf("  with 1SHOT=0 makes the combined read 0. The write reaches all of them.\n")
	if r.PowerCycled {
		p.printf("\n  Power cycle complete.\n")
		if r.AfterCycle != nil {
			p.printf("  Status after power-on (Skip ROM): 0x%02X\n", byte(*r.AfterCycle))
		}
	} else {
		p.printf("  The new mode takes effect at the next power-on.\n")
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
