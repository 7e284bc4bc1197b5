// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Opts contains options to pass to the constructors.
type Opts struct {
	// CommitDelay is the wait after writing an EEPROM backed register (status,
	// TH, TL). The bus is left idle meanwhile. Default is 200ms.
	CommitDelay time.Duration
	// ConversionDelay is the wait for a temperature conversion. Default is 1s.
	ConversionDelay time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	CommitDelay:     200 * time.Millisecond,
	ConversionDelay: time.Second,
}

// ErrNoBroadcast is returned by the broadcast operations of a Dev created
// without access to the bus.
var ErrNoBroadcast = errors.New("ds1821: broadcast needs a 1-wire bus")

// New returns a DS1821 in thermostat mode, the only device on bus.
//
// Function commands are sent directly after the reset pulse, without ROM
// command.
func New(bus onewire.Bus, opts *Opts) *Dev {
	return newDev(&direct{bus: bus}, bus, opts)
}

// NewAddressed returns a DS1821 in 1-wire mode with the specified 64-bit
// address. Function commands are preceded by a Match ROM command.
func NewAddressed(bus onewire.Bus, addr onewire.Address, opts *Opts) (*Dev, error) {
	if f := byte(addr); f != Family {
		return nil, fmt.Errorf("ds1821: family 0x%02x is not a DS1821", f)
	}
	var b [8]byte
	for i := range b {
		b[i] = byte(addr >> uint(8*i))
	}
	if !onewire.CheckCRC(b[:]) {
		return nil, fmt.Errorf("ds1821: invalid address 0x%016x", uint64(addr))
	}
	return newDev(&onewire.Dev{Bus: bus, Addr: addr}, bus, opts), nil
}

// NewConn returns a DS1821 reached through c, which must issue the reset and
// select the device before each transaction, like the kernel w1 driver does.
//
// Broadcast operations are not available.
func NewConn(c conn.Conn, opts *Opts) *Dev {
	return newDev(c, nil, opts)
}

// Dev is a handle to a DS1821.
//
// Every operation is a complete bus transaction starting with a reset pulse.
// Errors from the bus are returned wrapped with the operation name, so a
// missing device can be detected with errors.As and onewire.NoDevicesError.
type Dev struct {
	c    conn.Conn // function commands
	bc   conn.Conn // skip ROM function commands, nil when not available
	opts Opts

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) String() string {
	return "DS1821{" + d.c.String() + "}"
}

// Halt implements conn.Resource. It stops a continuous read started with
// SenseContinuous.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

// ReadStatus reads the status register.
func (d *Dev) ReadStatus() (Status, error) {
	v, err := d.read(d.c, cmdReadStatus, "read status")
	return Status(v), err
}

// WriteStatus writes the status register and waits for the EEPROM commit.
//
// Only the POL and 1SHOT bits are configuration; writing 0 to THF or TLF
// clears the flag.
func (d *Dev) WriteStatus(s Status) error {
	return d.write(d.c, cmdWriteStatus, byte(s), "write status")
}

// ReadStatusBroadcast reads the status register after a Skip ROM command.
func (d *Dev) ReadStatusBroadcast() (Status, error) {
	if d.bc == nil {
		return 0, ErrNoBroadcast
	}
	v, err := d.read(d.bc, cmdReadStatus, "read status (skip rom)")
	return Status(v), err
}

// WriteStatusBroadcast writes the status register after a Skip ROM command
// and waits for the EEPROM commit.
func (d *Dev) WriteStatusBroadcast(s Status) error {
	if d.bc == nil {
		return ErrNoBroadcast
	}
	return d.write(d.bc, cmdWriteStatus, byte(s), "write status (skip rom)")
}

// StartConversion starts a temperature conversion. It does not wait for the
// conversion to complete.
func (d *Dev) StartConversion() error {
	return wrap("start conversion", d.c.Tx([]byte{cmdStartConvert}, nil))
}

// StopConversion stops continuous conversions.
func (d *Dev) StopConversion() error {
	return wrap("stop conversion", d.c.Tx([]byte{cmdStopConvert}, nil))
}

// ReadTemperature reads the integer temperature register.
func (d *Dev) ReadTemperature() (int8, error) {
	v, err := d.read(d.c, cmdReadTemp, "read temperature")
	return int8(v), err
}

// ReadCounter reads the COUNT_REMAIN register.
func (d *Dev) ReadCounter() (uint8, error) {
	return d.read(d.c, cmdReadCounter, "read counter")
}

// ReadSlope reads the COUNT_PER_C register.
func (d *Dev) ReadSlope() (uint8, error) {
	return d.read(d.c, cmdReadSlope, "read slope")
}

// ReadSample reads the three registers making up the result of the last
// conversion.
func (d *Dev) ReadSample() (Sample, error) {
	var s Sample
	var err error
	if s.Raw, err = d.ReadTemperature(); err != nil {
		return Sample{}, err
	}
	if s.CountRemain, err = d.ReadCounter(); err != nil {
		return Sample{}, err
	}
	if s.CountPerC, err = d.ReadSlope(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// ReadThreshold reads TH or TL.
func (d *Dev) ReadThreshold(t Threshold) (int8, error) {
	cmd := byte(cmdReadTH)
	if t == Low {
		cmd = cmdReadTL
	}
	v, err := d.read(d.c, cmd, "read "+t.String())
	return int8(v), err
}

// ReadThresholds reads both thresholds.
func (d *Dev) ReadThresholds() (Thresholds, error) {
	var t Thresholds
	var err error
	if t.High, err = d.ReadThreshold(High); err != nil {
		return Thresholds{}, err
	}
	if t.Low, err = d.ReadThreshold(Low); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// WriteThreshold writes TH or TL and waits for the EEPROM commit.
//
// v must be in the range -55..125, otherwise ErrThresholdRange is returned
// without any bus activity.
func (d *Dev) WriteThreshold(t Threshold, v int) error {
	b, err := CheckThreshold(v)
	if err != nil {
		return err
	}
	cmd := byte(cmdWriteTH)
	if t == Low {
		cmd = cmdWriteTL
	}
	return d.write(d.c, cmd, byte(b), "write "+t.String())
}

// Sense implements physic.SenseEnv.
//
// It starts a conversion, waits Opts.ConversionDelay and reads the result.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.StartConversion(); err != nil {
		return err
	}
	sleep(d.opts.ConversionDelay)
	s, err := d.ReadSample()
	if err != nil {
		return err
	}
	e.Temperature = s.Temperature()
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// It returns a channel receiving a measurement every interval. A read in
// progress completes before Halt returns. Failed reads are skipped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < d.opts.ConversionDelay {
		return nil, fmt.Errorf("ds1821: interval shorter than the %s conversion", d.opts.ConversionDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("ds1821: already sensing continuously")
	}
	sensing := make(chan physic.Env)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(sensing)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			var e physic.Env
			if err := d.Sense(&e); err == nil {
				select {
				case sensing <- e:
				case <-stop:
					return
				}
			}
			select {
			case <-stop:
				return
			case <-t.C:
			}
		}
	}(d.stop)
	return sensing, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.MilliKelvin
}

//

func newDev(c conn.Conn, bus onewire.Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{c: c, opts: *opts}
	if d.opts.CommitDelay <= 0 {
		d.opts.CommitDelay = DefaultOpts.CommitDelay
	}
	if d.opts.ConversionDelay <= 0 {
		d.opts.ConversionDelay = DefaultOpts.ConversionDelay
	}
	if bus != nil {
		d.bc = &direct{bus: bus, prefix: []byte{cmdSkipROM}}
	}
	return d
}

func (d *Dev) read(c conn.Conn, cmd byte, op string) (byte, error) {
	var r [1]byte
	if err := c.Tx([]byte{cmd}, r[:]); err != nil {
		return 0, wrap(op, err)
	}
	return r[0], nil
}

func (d *Dev) write(c conn.Conn, cmd, v byte, op string) error {
	if err := c.Tx([]byte{cmd, v}, nil); err != nil {
		return wrap(op, err)
	}
	sleep(d.opts.CommitDelay)
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ds1821: %s: %w", op, err)
}

// direct sends function commands right after the reset pulse, optionally
// preceded by a fixed ROM command.
type direct struct {
	bus    onewire.Bus
	prefix []byte
}

func (d *direct) String() string {
	return d.bus.String()
}

func (d *direct) Tx(w, r []byte) error {
	if len(d.prefix) != 0 {
		w = append(append(make([]byte, 0, len(d.prefix)+len(w)), d.prefix...), w...)
	}
	return d.bus.Tx(w, r, onewire.WeakPullup)
}

func (d *direct) Duplex() conn.Duplex {
	return conn.Half
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
var _ conn.Conn = &direct{}
