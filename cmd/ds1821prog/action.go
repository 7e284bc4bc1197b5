// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/spf13/cobra"
)

func newActionCmd(e *env, a ds1821ctl.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:   a.String(),
		Short: a.Short(),
		Args:  cobra.ExactArgs(a.Args()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runAction(cmd, a, args)
		},
	}
	switch a {
	case ds1821ctl.SetTH, ds1821ctl.SetTL:
		// Flag parsing would take "-10" for a flag.
		other := ds1821ctl.SetTL
		if a == ds1821ctl.SetTL {
			other = ds1821ctl.SetTH
		}
		cmd.Use += " N [" + other.String() + " M]"
		cmd.Long = a.Short() + ".\n\nFollowed by \"" + other.String() + " M\", both thresholds are written before a single\nread back, so they can be moved across each other."
		cmd.Args = nil
		cmd.DisableFlagParsing = true
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			args, help, err := numericArgs(cmd, args)
			if err != nil || help {
				return err
			}
			return e.runAction(cmd, a, args)
		}
	case ds1821ctl.Status:
		cmd.Long = "Print the temperature in m°C, the alarm flags, the thresholds and TOUT\nas key=value lines, for scripts."
	case ds1821ctl.Temp:
		e.addLoopFlags(cmd)
		cmd.Args = cobra.ArbitraryArgs
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			args = e.loopValue(cmd, args)
			if err := cobra.NoArgs(cmd, args); err != nil {
				return err
			}
			return e.runAction(cmd, a, args)
		}
	case ds1821ctl.Fix:
		cmd.Long = "Set 1SHOT then power cycle the DS1821 through --power-gpio, so it boots in\n1-wire mode. Without --power-gpio, VDD must be reconnected by hand."
	}
	return cmd
}

func (e *env) runAction(cmd *cobra.Command, a ds1821ctl.Action, args []string) error {
	req, err := ds1821ctl.ParseRequest(a.String(), args)
	if err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	h, err := e.open(e)
	if err != nil {
		return err
	}
	defer h.Close()

	p := e.printer()
	quiet := e.quick || a == ds1821ctl.Status
	if !quiet {
		p.banner()
	}
	if err := e.resolveROM(h.bus, cfg); err != nil {
		return wiring(err, p)
	}
	c, err := ds1821ctl.New(h.bus, h.power, cfg)
	if err != nil {
		return err
	}
	if err := c.PowerUp(); err != nil {
		return err
	}
	if a == ds1821ctl.Temp && e.loop > 0 {
		return e.watch(cmd.Context(), p, quiet, c.Measure)
	}
	r, err := c.Run(req)
	if r != nil {
		p.report(r, quiet)
	}
	return wiring(err, p)
}

// wiring adds a hint to errors caused by no device answering.
func wiring(err error, p *printer) error {
	if ds1821ctl.IsNoPresence(err) {
		return fmt.Errorf("%w\ncheck wiring: DQ to %s, 4.7kΩ pull-up to 3.3V, GND", err, p.line)
	}
	return err
}

// numericArgs parses the flags of a command with flag parsing disabled. The
// other arguments, integers included, are returned in order.
func numericArgs(cmd *cobra.Command, args []string) ([]string, bool, error) {
	var pos, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if _, err := strconv.Atoi(a); err == nil || !strings.HasPrefix(a, "-") {
			pos = append(pos, a)
			continue
		}
		rest = append(rest, a)
		if takesValue(cmd, a) && i+1 < len(args) {
			i++
			rest = append(rest, args[i])
		}
	}
	cmd.DisableFlagParsing = false
	defer func() { cmd.DisableFlagParsing = true }()
	if err := cmd.ParseFlags(rest); err != nil {
		return nil, false, err
	}
	if help, _ := cmd.Flags().GetBool("help"); help {
		return nil, true, cmd.Help()
	}
	return append(pos, cmd.Flags().Args()...), false, nil
}

// takesValue returns true if arg is a flag whose value is the next argument.
func takesValue(cmd *cobra.Command, arg string) bool {
	if !strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
		return false
	}
	flags := cmd.Flags()
	flags.AddFlagSet(cmd.InheritedFlags())
	switch {
	case strings.HasPrefix(arg, "--"):
		f := flags.Lookup(arg[2:])
		return f != nil && f.NoOptDefVal == ""
	case len(arg) == 2:
		f := flags.ShorthandLookup(arg[1:])
		return f != nil && f.NoOptDefVal == ""
	}
	return false
}
