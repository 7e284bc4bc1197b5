// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/GermanBionicSystems/ds1821/w1"
	"github.com/spf13/cobra"
)

func newReadCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [DEVICE-ID]",
		Short: "Read the temperature through the kernel w1 driver",
		Long: `Read a DS1821 in 1-wire mode through the Linux w1 subsystem, without
driving any pin directly. DEVICE-ID is a directory of /sys/bus/w1/devices,
e.g. 22-000000123456; by default the first DS1821 found is used.

Requires the w1-gpio overlay and a device switched to 1-wire mode with "fix".`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			args = e.loopValue(cmd, args)
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return err
			}
			return e.runRead(cmd, args)
		},
	}
	e.addLoopFlags(cmd)
	return cmd
}

func (e *env) runRead(cmd *cobra.Command, args []string) error {
	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		var err error
		if id, err = w1.Find(e.w1Dir, ds1821.Family); err != nil {
			return err
		}
	}
	s, err := w1.Open(e.w1Dir, id)
	if err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	c := ds1821ctl.NewDev(ds1821.NewConn(s, &cfg.Device), nil, cfg)

	p := e.printer()
	p.line = s.String()
	if !e.quick {
		p.printf("DS1821 temperature reader\n─────────────────────────\nDevice: %s\n\n", id)
	}
	if e.loop > 0 {
		return e.watch(cmd.Context(), p, e.quick, c.Measure)
	}
	m, err := c.Measure()
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	p.reading(m, e.quick)
	return nil
}
