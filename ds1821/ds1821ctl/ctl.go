// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821ctl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/ds1821/bitbang"
	"github.com/GermanBionicSystems/ds1821/ds1821"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Config configures a Controller.
type Config struct {
	// Device is passed to the ds1821 constructors.
	Device ds1821.Opts
	// Address selects a DS1821 in 1-wire mode. Zero talks to a DS1821 in
	// thermostat mode, alone on the bus.
	Address onewire.Address
	// ReadTOUT samples the data line after a probe or a measurement. In
	// thermostat mode the DQ pin is the TOUT output.
	ReadTOUT bool
	// MaxDevices caps the ROM discovery of Scan.
	MaxDevices int
	// PowerOff is how long VDD is removed during a power cycle.
	PowerOff time.Duration
	// PowerUp is the wait after VDD is restored.
	PowerUp time.Duration
	// Logger receives progress messages. Nil disables them.
	Logger *log.Logger
}

// DefaultConfig is the recommended configuration.
var DefaultConfig = Config{
	Device:     ds1821.DefaultOpts,
	MaxDevices: bitbang.DefaultMaxDevices,
	PowerOff:   500 * time.Millisecond,
	PowerUp:    500 * time.Millisecond,
}

// ErrNoPowerPin is returned by PowerCycle and Fix when the controller has no
// pin switching the DS1821 VDD.
var ErrNoPowerPin = errors.New("ds1821ctl: no power pin; disconnect and reconnect VDD manually to apply the mode change")

// IsNoPresence returns true if err was caused by no device answering the
// reset pulse.
func IsNoPresence(err error) bool {
	var e onewire.NoDevicesError
	return errors.As(err, &e) && e.NoDevices()
}

// Controller runs the programmer actions against one DS1821.
type Controller struct {
	bus   onewire.Bus
	dev   *ds1821.Dev
	power gpio.PinOut
	cfg   Config
}

// New returns a Controller for the DS1821 on bus.
//
// power is the pin switching the DS1821 VDD; it may be nil. Scan uses the
// Reset, ReadROM and Discover methods of bus when present, like the ones of
// bitbang.Bus, and falls back on plain transactions and onewire.Search.
func New(bus onewire.Bus, power gpio.PinOut, cfg *Config) (*Controller, error) {
	c := newController(bus, power, cfg)
	if c.cfg.Address == 0 {
		c.dev = ds1821.New(bus, &c.cfg.Device)
		return c, nil
	}
	d, err := ds1821.NewAddressed(bus, c.cfg.Address, &c.cfg.Device)
	if err != nil {
		return nil, err
	}
	c.dev = d
	return c, nil
}

// Identify reads the ROM code of the only device on bus, a DS1821 in 1-wire
// mode. A code failing its CRC returns an error wrapping bitbang.ErrChecksum.
func Identify(bus onewire.Bus) (bitbang.ROM, error) {
	r, err := readROM(bus)
	if err != nil {
		return bitbang.ROM{}, err
	}
	if err := r.Check(); err != nil {
		return bitbang.ROM{}, err
	}
	if r.Family() != ds1821.Family {
		return bitbang.ROM{}, fmt.Errorf("ds1821ctl: %s is not a DS1821 (family 0x%02X)", r, r.Family())
	}
	return r, nil
}

// NewDev returns a Controller for a DS1821 reached without a bus master, like
// one from ds1821.NewConn. Scan is not available. cfg.Address is ignored.
func NewDev(d *ds1821.Dev, power gpio.PinOut, cfg *Config) *Controller {
	c := newController(nil, power, cfg)
	c.dev = d
	return c
}

func newController(bus onewire.Bus, power gpio.PinOut, cfg *Config) *Controller {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	c := &Controller{bus: bus, power: power, cfg: *cfg}
	if c.cfg.MaxDevices <= 0 {
		c.cfg.MaxDevices = DefaultConfig.MaxDevices
	}
	if c.cfg.PowerOff <= 0 {
		c.cfg.PowerOff = DefaultConfig.PowerOff
	}
	if c.cfg.PowerUp <= 0 {
		c.cfg.PowerUp = DefaultConfig.PowerUp
	}
	if c.cfg.Device.ConversionDelay <= 0 {
		c.cfg.Device.ConversionDelay = ds1821.DefaultOpts.ConversionDelay
	}
	return c
}

func (c *Controller) String() string {
	return c.dev.String()
}

// Dev returns the device handle.
func (c *Controller) Dev() *ds1821.Dev {
	return c.dev
}

// PowerUp powers the DS1821 and waits for it to boot. Without power pin it
// only lets the bus settle.
func (c *Controller) PowerUp() error {
	if c.power == nil {
		sleep(time.Millisecond)
		return nil
	}
	if err := c.power.Out(gpio.High); err != nil {
		return fmt.Errorf("ds1821ctl: power on: %w", err)
	}
	c.logf("VDD on (%s), waiting %s", c.power, c.cfg.PowerUp)
	sleep(c.cfg.PowerUp)
	return nil
}

// PowerCycle removes VDD for PowerOff and restores it, then waits PowerUp.
// The DS1821 reads its mode from EEPROM only at power-on.
func (c *Controller) PowerCycle() error {
	if c.power == nil {
		return ErrNoPowerPin
	}
	c.logf("VDD off (%s), waiting %s", c.power, c.cfg.PowerOff)
	if err := c.power.Out(gpio.Low); err != nil {
		return fmt.Errorf("ds1821ctl: power off: %w", err)
	}
	sleep(c.cfg.PowerOff)
	if err := c.power.Out(gpio.High); err != nil {
		return fmt.Errorf("ds1821ctl: power on: %w", err)
	}
	c.logf("VDD on, waiting %s for the power-on reset", c.cfg.PowerUp)
	sleep(c.cfg.PowerUp)
	return nil
}

// Scan diagnoses the bus.
//
// Only the absence of a presence pulse is an error. The outcome of the other
// steps is recorded in the report, since a DS1821 in thermostat mode does not
// answer ROM commands.
func (c *Controller) Scan() (*ScanReport, error) {
	if c.bus == nil {
		return nil, errors.New("ds1821ctl: scan needs a 1-wire bus")
	}
	r := &ScanReport{}
	c.logf("[1/4] presence check")
	if err := c.presence(); err != nil {
		return nil, fmt.Errorf("ds1821ctl: scan: %w", err)
	}
	r.Presence = true

	c.logf("[2/4] read ROM")
	rom, err := readROM(c.bus)
	if err != nil {
		r.ROMErr = err
	} else {
		r.ROM = &rom
	}

	c.logf("[3/4] search ROM (up to %d devices)", c.cfg.MaxDevices)
	r.Devices, r.SearchErr = c.discover()

	c.logf("[4/4] direct status read")
	if st, err := c.dev.ReadStatus(); err != nil {
		r.StatusErr = err
	} else {
		r.Status = &st
	}
	if th, err := c.dev.ReadThresholds(); err == nil {
		r.Thresholds = &th
	}
	return r, nil
}

// Probe reads the status register. Thresholds and TOUT are read when
// possible.
func (c *Controller) Probe() (*ProbeReport, error) {
	st, err := c.dev.ReadStatus()
	if err != nil {
		return nil, err
	}
	r := &ProbeReport{Status: st}
	if th, err := c.dev.ReadThresholds(); err != nil {
		c.logf("thresholds: %v", err)
	} else {
		r.Thresholds = &th
	}
	r.TOUT = c.readTOUT()
	return r, nil
}

// Measure runs a one-shot conversion and reads the result.
func (c *Controller) Measure() (*Measurement, error) {
	c.logf("starting conversion")
	if err := c.dev.StartConversion(); err != nil {
		return nil, err
	}
	sleep(c.cfg.Device.ConversionDelay)
	st, err := c.dev.ReadStatus()
	if err != nil {
		return nil, err
	}
	if !st.Done() {
		c.logf("warning: DONE is clear, the conversion may not be complete")
	}
	s, err := c.dev.ReadSample()
	if err != nil {
		return nil, err
	}
	m := &Measurement{Time: now(), Status: st, Sample: s}
	if th, err := c.dev.ReadThresholds(); err != nil {
		c.logf("thresholds: %v", err)
	} else {
		m.Thresholds = &th
	}
	m.TOUT = c.readTOUT()
	return m, nil
}

// Watch calls fn with a new measurement every interval until ctx is done.
func (c *Controller) Watch(ctx context.Context, interval time.Duration, fn func(*Measurement, error)) error {
	return Watch(ctx, interval, c.Measure, fn)
}

// Watch calls measure every interval and passes the result to fn, until ctx
// is done.
//
// ctx is checked between measurements only; a measurement in progress always
// completes.
func Watch(ctx context.Context, interval time.Duration, measure func() (*Measurement, error), fn func(*Measurement, error)) error {
	if interval <= 0 {
		return errors.New("ds1821ctl: watch interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fn(measure())
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// SetThreshold writes one alarm threshold and reads both back.
func (c *Controller) SetThreshold(t ds1821.Threshold, v int8) (*ThresholdReport, error) {
	if t == ds1821.High {
		return c.SetThresholds(&v, nil)
	}
	return c.SetThresholds(nil, &v)
}

// SetThresholds writes the non-nil thresholds, then reads both back once.
//
// The thresholds are written before any verification, so that moving both
// across each other never reports a transient TL >= TH.
func (c *Controller) SetThresholds(th, tl *int8) (*ThresholdReport, error) {
	if th == nil && tl == nil {
		return nil, errors.New("ds1821ctl: no threshold to write")
	}
	before, err := c.dev.ReadThresholds()
	if err != nil {
		return nil, err
	}
	c.logf("current TH=%d°C TL=%d°C", before.High, before.Low)
	for _, w := range []struct {
		t ds1821.Threshold
		v *int8
	}{{ds1821.High, th}, {ds1821.Low, tl}} {
		if w.v == nil {
			continue
		}
		c.logf("writing %s=%d°C", w.t, *w.v)
		if err := c.dev.WriteThreshold(w.t, int(*w.v)); err != nil {
			return nil, err
		}
	}
	after, err := c.dev.ReadThresholds()
	if err != nil {
		return nil, err
	}
	r := &ThresholdReport{High: th, Low: tl, Before: before, After: after}
	if !r.Verified() {
		c.logf("warning: the thresholds read back differ from the values written")
	}
	if after.Inverted() {
		c.logf("warning: TL >= TH, the thermostat output will not switch as expected")
	}
	return r, nil
}

// SetOneShot writes the 1SHOT bit, which puts a DS1821 back in 1-wire mode at
// the next power-on.
//
// The write is issued three times: addressed the configured way, with Skip
// ROM, then addressed again. Each write is followed by a verifying read whose
// failure is only recorded. A failed write is returned as an error.
func (c *Controller) SetOneShot() (*ModeReport, error) {
	initial, err := c.dev.ReadStatus()
	if err != nil {
		return nil, err
	}
	r := &ModeReport{Initial: initial}
	c.logf("current status %s", initial)
	for i, broadcast := range []bool{false, true, false} {
		write, read := c.dev.WriteStatus, c.dev.ReadStatus
		if broadcast {
			write, read = c.dev.WriteStatusBroadcast, c.dev.ReadStatusBroadcast
		}
		a := Attempt{Broadcast: broadcast, Written: ds1821.OneShot}
		c.logf("attempt %d: writing status %s (skip ROM: %t)", i+1, a.Written, broadcast)
		if err := write(a.Written); err != nil {
			return r, err
		}
		if st, err := read(); err != nil {
			c.logf("attempt %d: verify: %v", i+1, err)
		} else {
			a.Readback = &st
		}
		r.Attempts = append(r.Attempts, a)
	}
	if st, err := c.dev.ReadStatus(); err == nil {
		r.Final = &st
	}
	if st, err := c.dev.ReadStatusBroadcast(); err == nil {
		r.FinalBroadcast = &st
	}
	if !r.OneShot() {
		c.logf("warning: 1SHOT did not read back as set")
	}
	return r, nil
}

// Run executes req.
//
// set-oneshot and fix probe the device first; fix power cycles it after the
// mode change and returns ErrNoPowerPin, with the report, when it cannot.
func (c *Controller) Run(req Request) (Report, error) {
	if req.Action < 0 || int(req.Action) >= len(dispatch) {
		return nil, fmt.Errorf("ds1821ctl: unknown action %d", int(req.Action))
	}
	return dispatch[req.Action](c, req)
}

var dispatch = [...]func(c *Controller, req Request) (Report, error){
	Scan: func(c *Controller, _ Request) (Report, error) {
		r, err := c.Scan()
		if err != nil {
			return nil, err
		}
		return r, nil
	},
	Probe: func(c *Controller, _ Request) (Report, error) {
		r, err := c.Probe()
		if err != nil {
			return nil, err
		}
		return r, nil
	},
	Temp: func(c *Controller, _ Request) (Report, error) {
		m, err := c.Measure()
		if err != nil {
			return nil, err
		}
		return (*TempReport)(m), nil
	},
	Status: func(c *Controller, _ Request) (Report, error) {
		m, err := c.Measure()
		if err != nil {
			return nil, err
		}
		return m, nil
	},
	SetTH: setThresholds,
	SetTL: setThresholds,
	SetOneShot: func(c *Controller, _ Request) (Report, error) {
		return c.reprogram(false)
	},
	Fix: func(c *Controller, _ Request) (Report, error) {
		return c.reprogram(true)
	},
}

func setThresholds(c *Controller, req Request) (Report, error) {
	r, err := c.SetThresholds(req.TH, req.TL)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// reprogram probes the device, sets 1SHOT and optionally power cycles it.
// The report is returned with the error once the mode change started.
func (c *Controller) reprogram(cycle bool) (Report, error) {
	p, err := c.Probe()
	if err != nil {
		return nil, err
	}
	r, err := c.SetOneShot()
	if r == nil {
		return nil, err
	}
	r.Probe = p
	if err != nil || !cycle {
		return r, err
	}
	if err := c.PowerCycle(); err != nil {
		return r, err
	}
	r.PowerCycled = true
	if st, err := c.dev.ReadStatusBroadcast(); err == nil {
		r.AfterCycle = &st
	}
	return r, nil
}

func (c *Controller) presence() error {
	if r, ok := c.bus.(interface{ Reset() (bool, error) }); ok {
		present, err := r.Reset()
		if err != nil {
			return err
		}
		if !present {
			return noPresenceError("no presence pulse")
		}
		return nil
	}
	return c.bus.Tx(nil, nil, onewire.WeakPullup)
}

func readROM(bus onewire.Bus) (bitbang.ROM, error) {
	if r, ok := bus.(interface{ ReadROM() (bitbang.ROM, error) }); ok {
		return r.ReadROM()
	}
	var rom bitbang.ROM
	err := bus.Tx([]byte{bitbang.CmdReadROM}, rom[:], onewire.WeakPullup)
	return rom, err
}

func (c *Controller) discover() ([]bitbang.ROM, error) {
	if d, ok := c.bus.(interface {
		Discover(max int) ([]bitbang.ROM, error)
	}); ok {
		return d.Discover(c.cfg.MaxDevices)
	}
	addrs, err := c.bus.Search(false)
	roms := make([]bitbang.ROM, 0, len(addrs))
	for _, a := range addrs {
		if len(roms) == c.cfg.MaxDevices {
			break
		}
		roms = append(roms, bitbang.FromAddress(a))
	}
	return roms, err
}

// readTOUT samples the DQ line with the pull-up disabled.
func (c *Controller) readTOUT() *gpio.Level {
	if !c.cfg.ReadTOUT {
		return nil
	}
	p, ok := c.bus.(onewire.Pins)
	if !ok || p.Q() == nil {
		c.logf("TOUT: the bus does not expose its data pin")
		return nil
	}
	q := p.Q()
	if err := q.In(gpio.Float, gpio.NoEdge); err != nil {
		c.logf("TOUT: %v", err)
		return nil
	}
	l := q.Read()
	return &l
}

func (c *Controller) logf(format string, v ...interface{}) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, v...)
	}
}

type noPresenceError string

func (e noPresenceError) Error() string   { return string(e) }
func (e noPresenceError) NoDevices() bool { return true }
func (e noPresenceError) BusError() bool  { return true }

var (
	sleep = time.Sleep
	now   = time.Now
)

var _ onewire.NoDevicesError = noPresenceError("")
