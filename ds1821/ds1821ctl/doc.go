// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1821ctl runs the programmer actions on a DS1821: bus diagnosis,
// status and threshold access, temperature measurement and the switch from
// thermostat mode back to 1-wire mode.
//
// Every action returns a Report, printable as key=value lines for scripts.
// Only the failure of a required step is an error; optional reads that fail
// are left out of the report.
package ds1821ctl
