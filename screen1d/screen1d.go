// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screen1d implements a one line display.Drawer that outputs to a
// terminal using ANSI color codes, and a thermostat gauge to draw on it.
package screen1d

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Opts represents the options available for this display.
type Opts struct {
	// X is the number of cells.
	X int
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to a colorable stdout.
	W io.Writer
}

// Dev is a line of colored cells in the terminal.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	pixels  []color.NRGBA
	buf     bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) (*Dev, error) {
	if opts.X <= 0 {
		return nil, errors.New("screen1d: width must be positive")
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{w: w, palette: *p, pixels: make([]color.NRGBA, opts.X)}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("Screen1D{%d}", len(d.pixels))
}

// Halt implements conn.Resource. It resets the terminal colors and ends the
// line.
func (d *Dev) Halt() error {
	_, err := io.WriteString(d.w, "\033[0m\n")
	return err
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, len(d.pixels), 1)
}

// Draw implements display.Drawer. Only the first line of src is used.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		d.pixels[x] = color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y)).(color.NRGBA)
	}
	return d.refresh()
}

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for _, c := range d.pixels {
		_, _ = d.buf.WriteString(d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return err
}

// Gauge draws a temperature against the thermostat thresholds.
//
// Cells below Low are blue, cells above High are red, the others are green.
// Cells up to the temperature are lit, the rest are dimmed.
type Gauge struct {
	Min, Max  float64
	Low, High float64
}

// Image returns a one line image of width cells showing v.
func (g *Gauge) Image(width int, v float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, 1))
	span := g.Max - g.Min
	if span <= 0 {
		span = 1
	}
	for x := 0; x < width; x++ {
		t := g.Min + span*(float64(x)+0.5)/float64(width)
		c := color.NRGBA{0x20, 0xc0, 0x20, 0xff}
		switch {
		case t < g.Low:
			c = color.NRGBA{0x20, 0x60, 0xff, 0xff}
		case t >= g.High:
			c = color.NRGBA{0xff, 0x30, 0x20, 0xff}
		}
		if t > v {
			c.R, c.G, c.B = c.R/5, c.G/5, c.B/5
		}
		img.SetNRGBA(x, 0, c)
	}
	return img
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
