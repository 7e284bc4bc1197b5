// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements a 1-wire bus master in software.
//
// The bus is driven through a Transceiver generating reset pulses and read and
// write time slots. Slots produces them by toggling a GPIO pin wired as an
// open-drain line with an external pull-up resistor (typically 4.7kΩ), timing
// every phase with a busy-wait. Only standard speed is supported.
//
// Bus implements onewire.Bus, so the drivers written against periph's onewire
// package run unmodified on it. It also offers the lower level operations a
// bus diagnostic tool needs: raw resets, Read ROM and a Search ROM discovery
// that returns every code it assembles, including the ones failing the CRC.
//
// Timing is only as good as the scheduler lets it be. The goroutine issuing a
// transaction is locked to its OS thread for the duration of the transaction,
// but preemption by the kernel can still stretch a slot. Running the program
// with a real-time priority reduces the risk.
//
// Datasheet
//
// https://www.analog.com/en/technical-articles/1wire-communication-through-software.html
package bitbang
