// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ds1821prog programs and reads a DS1821 thermostat over a 1-wire bus
// bit-banged on a GPIO pin or driven through a DS9097 style UART adapter.
//
// Typical workflow:
//
//	sudo ds1821prog probe    # verify communication
//	sudo ds1821prog temp     # read the temperature
//	sudo ds1821prog fix      # switch to 1-wire mode and reload
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(newEnv()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
