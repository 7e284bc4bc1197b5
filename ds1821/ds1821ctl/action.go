// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821ctl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/ds1821/ds1821"
)

// Action is an operation of the programmer.
type Action int

// Actions.
const (
	Scan       Action = iota // diagnose the bus
	Probe                    // read status, thresholds and TOUT
	Temp                     // one-shot temperature conversion
	Status                   // temperature and flags as key=value lines
	SetTH                    // write the high alarm threshold
	SetTL                    // write the low alarm threshold
	SetOneShot               // set 1SHOT to leave thermostat mode
	Fix                      // set-oneshot followed by a power cycle
)

var actionInfo = [...]struct {
	name  string
	args  int
	short string
}{
	Scan:       {"scan", 0, "Diagnose the bus: presence, Read ROM, Search ROM, direct status"},
	Probe:      {"probe", 0, "Read the status register, thresholds and TOUT"},
	Temp:       {"temp", 0, "Run a temperature conversion and read the result"},
	Status:     {"status", 0, "Print temperature, alarm flags, thresholds and TOUT as key=value lines"},
	SetTH:      {"set-th", 1, "Write the high alarm threshold TH in °C (-55..125)"},
	SetTL:      {"set-tl", 1, "Write the low alarm threshold TL in °C (-55..125)"},
	SetOneShot: {"set-oneshot", 0, "Set 1SHOT so the DS1821 boots in 1-wire mode"},
	Fix:        {"fix", 0, "Set 1SHOT and power cycle the DS1821 through the power pin"},
}

// Actions returns all the actions in display order.
func Actions() []Action {
	a := make([]Action, len(actionInfo))
	for i := range a {
		a[i] = Action(i)
	}
	return a
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionInfo) {
		return "Action(" + strconv.Itoa(int(a)) + ")"
	}
	return actionInfo[a].name
}

// Args returns the number of arguments the action takes. set-th and set-tl
// may also be followed by the other one and its value.
func (a Action) Args() int {
	return actionInfo[a].args
}

// Short returns a one line description of the action.
func (a Action) Short() string {
	return actionInfo[a].short
}

// ParseAction returns the action named s.
func ParseAction(s string) (Action, error) {
	for i := range actionInfo {
		if actionInfo[i].name == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("ds1821ctl: unknown action %q", s)
}

// ParseThreshold parses a threshold in whole degrees Celsius.
func ParseThreshold(s string) (int8, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ds1821ctl: threshold %q is not an integer", s)
	}
	return ds1821.CheckThreshold(v)
}

// Request is an action with its arguments.
type Request struct {
	Action Action
	// TH and TL are the thresholds to write for SetTH and SetTL, nil when left
	// unchanged.
	TH *int8
	TL *int8
}

// ParseRequest parses an action name followed by its arguments.
//
// Both thresholds can be written at once with "set-th 30 set-tl 20".
func ParseRequest(name string, args []string) (Request, error) {
	a, err := ParseAction(name)
	if err != nil {
		return Request{}, err
	}
	r := Request{Action: a}
	if a == SetTH || a == SetTL {
		r.TH, r.TL, err = parseThresholds(a, args)
		if err != nil {
			return Request{}, err
		}
		return r, nil
	}
	if len(args) != a.Args() {
		return Request{}, fmt.Errorf("ds1821ctl: %s takes %d argument(s), got %d", a, a.Args(), len(args))
	}
	return r, nil
}

func parseThresholds(a Action, args []string) (th, tl *int8, err error) {
	if len(args) != 1 && len(args) != 3 {
		return nil, nil, fmt.Errorf("ds1821ctl: %s takes N, optionally followed by set-th N or set-tl N", a)
	}
	set := func(a Action, s string) error {
		v, err := ParseThreshold(s)
		if err != nil {
			return err
		}
		p := &th
		if a == SetTL {
			p = &tl
		}
		if *p != nil {
			return fmt.Errorf("ds1821ctl: %s given twice", a)
		}
		*p = &v
		return nil
	}
	if err := set(a, args[0]); err != nil {
		return nil, nil, err
	}
	if len(args) == 3 {
		b, err := ParseAction(args[1])
		if err != nil || (b != SetTH && b != SetTL) {
			return nil, nil, fmt.Errorf("ds1821ctl: unexpected %q, want set-th or set-tl", args[1])
		}
		if err := set(b, args[2]); err != nil {
			return nil, nil, err
		}
	}
	return th, tl, nil
}
