// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1821 controls a Dallas/Maxim DS1821 programmable digital
// thermostat and thermometer over 1-wire.
//
// The DS1821 powers up in one of two modes. In thermostat mode it drives its
// DQ pin as the TOUT thermostat output and only answers the 1-wire protocol
// without any ROM layer: function commands follow the reset pulse directly.
// It has no ROM code and does not take part in Search ROM. In 1-wire mode it
// behaves as a regular slave with family code 0x22. New addresses the first
// kind, NewAddressed the second one.
//
// The high and low thresholds (TH, TL) and the configuration bits of the
// status register are stored in EEPROM; every write is followed by a fixed
// commit delay during which the bus is left idle.
//
// Temperatures are computed with the high resolution formula of the
// datasheet: T - 0.25 + (COUNT_PER_C - COUNT_REMAIN) / COUNT_PER_C.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS1821.pdf
package ds1821
