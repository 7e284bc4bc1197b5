// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package screen1d

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/maruel/ansi256"
)

func TestDev(t *testing.T) {
	var buf bytes.Buffer
	d, err := New(&Opts{X: 4, W: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "Screen1D{4}" {
		t.Fatal(s)
	}
	if b := d.Bounds(); b.Dx() != 4 || b.Dy() != 1 {
		t.Fatal(b)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	red := color.NRGBA{0xff, 0, 0, 0xff}
	img.SetNRGBA(2, 0, red)
	if err := d.Draw(d.Bounds(), img, image.Point{}); err != nil {
		t.Fatal(err)
	}
	if d.pixels[2] != red || d.pixels[0] != (color.NRGBA{}) {
		t.Fatal(d.pixels)
	}
	want := "\r\033[0m" + strings.Repeat(ansi256.Default.Block(color.NRGBA{}), 2) + ansi256.Default.Block(red) + ansi256.Default.Block(color.NRGBA{}) + "\033[0m "
	if got := buf.String(); got != want {
		t.Fatalf("%q != %q", got, want)
	}
	buf.Reset()
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "\033[0m\n" {
		t.Fatalf("%q", buf.String())
	}
}

func TestNew_fail(t *testing.T) {
	if _, err := New(&Opts{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGauge(t *testing.T) {
	g := Gauge{Min: 0, Max: 40, Low: 10, High: 30}
	img := g.Image(4, 20)
	data := []struct {
		x    int
		want color.NRGBA
	}{
		{0, color.NRGBA{0x20, 0x60, 0xff, 0xff}}, // 5°C, lit, below TL
		{1, color.NRGBA{0x20, 0xc0, 0x20, 0xff}}, // 15°C, lit
		{2, color.NRGBA{0x06, 0x26, 0x06, 0xff}}, // 25°C, dimmed
		{3, color.NRGBA{0x33, 0x09, 0x06, 0xff}}, // 35°C, dimmed, above TH
	}
	for i, line := range data {
		if got := img.NRGBAAt(line.x, 0); got != line.want {
			t.Fatalf("#%d: %v != %v", i, got, line.want)
		}
	}
}
