// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1821 is a container for the DS1821 thermostat tooling.
//
// bitbang is a 1-wire bus master driving a single GPIO line, or a DS9097
// style UART adapter from ds9097. ds1821 is the device driver on top of
// any onewire.Bus or conn.Conn, w1 reaches devices handled by the Linux
// kernel driver, and ds1821/ds1821ctl implements the programmer actions
// used by cmd/ds1821prog.
package ds1821
