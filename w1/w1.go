// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1 talks to 1-wire slaves through the Linux kernel w1 subsystem.
//
// The kernel bus master (w1-gpio, DS2482, DS9490...) enumerates the slaves it
// finds with Search ROM and exposes each of them as a directory named after
// its ROM code, such as /sys/bus/w1/devices/22-00000012ab34. Writing to the
// rw file of a slave issues a reset, a Match ROM and the bytes written;
// reading it returns the bytes the slave sends next.
//
// Only slaves in 1-wire mode are listed: a DS1821 in thermostat mode has no
// ROM code and is invisible to the kernel.
package w1

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3/fs"
)

// DevicesDir is where the kernel lists the slaves of all its bus masters.
const DevicesDir = "/sys/bus/w1/devices"

// settle is the wait between writing a command and reading the answer.
const settle = 10 * time.Millisecond

// List returns the IDs of the slaves with the family code found in dir,
// sorted. An empty dir means DevicesDir.
func List(dir string, family byte) ([]string, error) {
	if dir == "" {
		dir = DevicesDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("w1: %w", err)
	}
	prefix := fmt.Sprintf("%02x-", family)
	var ids []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Find returns the first slave with the family code found in dir.
func Find(dir string, family byte) (string, error) {
	ids, err := List(dir, family)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("w1: no device of family 0x%02x found; is the w1 bus master loaded?", family)
	}
	return ids[0], nil
}

// ParseID converts a kernel slave ID to a 1-wire address, computing the CRC
// byte the kernel does not show.
func ParseID(id string) (onewire.Address, error) {
	f, s, ok := strings.Cut(id, "-")
	if !ok || len(f) != 2 || len(s) != 12 {
		return 0, fmt.Errorf("w1: invalid device ID %q", id)
	}
	family, err := strconv.ParseUint(f, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("w1: invalid device ID %q", id)
	}
	serial, err := strconv.ParseUint(s, 16, 48)
	if err != nil {
		return 0, fmt.Errorf("w1: invalid device ID %q", id)
	}
	var b [8]byte
	b[0] = byte(family)
	for i := 0; i < 6; i++ {
		b[1+i] = byte(serial >> uint(8*i))
	}
	b[7] = onewire.CalcCRC(b[:7])
	var a onewire.Address
	for i := range b {
		a |= onewire.Address(b[i]) << uint(8*i)
	}
	return a, nil
}

// Open returns the slave id found in dir. An empty dir means DevicesDir.
func Open(dir, id string) (*Slave, error) {
	if dir == "" {
		dir = DevicesDir
	}
	addr, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(dir, id, "rw")
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("w1: %w", err)
	}
	return &Slave{id: id, path: p, addr: addr}, nil
}

// Slave is a 1-wire slave handled by the kernel.
//
// It implements conn.Conn; the kernel takes care of the reset and of the
// device selection before each transaction.
type Slave struct {
	id   string
	path string
	addr onewire.Address
}

func (s *Slave) String() string {
	return "w1(" + s.id + ")"
}

// Address returns the 64-bit address of the slave.
func (s *Slave) Address() onewire.Address {
	return s.addr
}

// Tx implements conn.Conn.
//
// The write and the read are separate kernel transactions: the slave must
// keep its state between the two, which the DS1821 read commands do.
func (s *Slave) Tx(w, r []byte) error {
	f, err := fs.Open(s.path, os.O_RDWR)
	if err != nil {
		return fmt.Errorf("w1: %w", err)
	}
	defer f.Close()
	if len(w) != 0 {
		if _, err := f.Write(w); err != nil {
			return fmt.Errorf("w1: write to %s: %w", s.id, err)
		}
	}
	if len(r) == 0 {
		return nil
	}
	sleep(settle)
	if _, err := io.ReadFull(f, r); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("w1: short read from %s", s.id)
		}
		return fmt.Errorf("w1: read from %s: %w", s.id, err)
	}
	return nil
}

// Duplex implements conn.Conn.
func (s *Slave) Duplex() conn.Duplex {
	return conn.Half
}

var sleep = time.Sleep

var _ conn.Conn = &Slave{}
