// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1821plot renders a series of DS1821 temperature readings as a
// chart, with the thermostat thresholds as guide lines.
package ds1821plot

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Point is a temperature reading.
type Point struct {
	Time    time.Time
	Celsius float64
}

// Opts contains the chart options.
type Opts struct {
	Width  int
	Height int
	// Title is drawn at the top of the chart.
	Title string
	// Thresholds draws TH and TL lines when set.
	Thresholds *ds1821.Thresholds
	// FontSize in points. Default is 12.
	FontSize float64
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Width:    800,
	Height:   400,
	Title:    "DS1821",
	FontSize: 12,
}

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("ds1821plot: no reading")

// Render draws the readings.
func Render(points []Point, opts *Opts) (image.Image, error) {
	dc, err := render(points, opts)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// WritePNG renders the readings and encodes the chart as PNG.
func WritePNG(w io.Writer, points []Point, opts *Opts) error {
	dc, err := render(points, opts)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

//

func render(points []Point, opts *Opts) (*gg.Context, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("ds1821plot: invalid size %dx%d", o.Width, o.Height)
	}
	if o.FontSize <= 0 {
		o.FontSize = DefaultOpts.FontSize
	}
	if len(points) == 0 {
		return nil, ErrEmpty
	}
	face, err := newFace(o.FontSize)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(o.Width, o.Height)
	dc.SetFontFace(face)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	c := newChart(dc, points, &o)
	c.grid()
	if o.Thresholds != nil {
		c.threshold(ds1821.High, float64(o.Thresholds.High), 0.8, 0.1, 0.1)
		c.threshold(ds1821.Low, float64(o.Thresholds.Low), 0.1, 0.3, 0.8)
	}
	c.series(points)
	if o.Title != "" {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(o.Title, float64(o.Width)/2, c.margin/2, 0.5, 0.5)
	}
	return dc, nil
}

// chart maps readings to the drawing area.
type chart struct {
	dc     *gg.Context
	margin float64
	t0     time.Time
	span   time.Duration
	lo, hi float64
}

func newChart(dc *gg.Context, points []Point, o *Opts) *chart {
	c := &chart{dc: dc, margin: 3 * o.FontSize, t0: points[0].Time}
	c.lo, c.hi = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		c.lo = math.Min(c.lo, p.Celsius)
		c.hi = math.Max(c.hi, p.Celsius)
		if d := p.Time.Sub(c.t0); d > c.span {
			c.span = d
		}
	}
	if t := o.Thresholds; t != nil {
		c.lo = math.Min(c.lo, float64(t.Low))
		c.hi = math.Max(c.hi, float64(t.High))
	}
	c.lo = math.Floor(c.lo) - 1
	c.hi = math.Ceil(c.hi) + 1
	if c.span <= 0 {
		c.span = time.Second
	}
	return c
}

func (c *chart) x(t time.Time) float64 {
	w := float64(c.dc.Width()) - 2*c.margin
	return c.margin + w*float64(t.Sub(c.t0))/float64(c.span)
}

func (c *chart) y(v float64) float64 {
	h := float64(c.dc.Height()) - 2*c.margin
	return c.margin + h*(c.hi-v)/(c.hi-c.lo)
}

// grid draws the horizontal lines with their labels and the time span.
func (c *chart) grid() {
	dc := c.dc
	step := math.Max(1, math.Ceil((c.hi-c.lo)/10))
	left, right := c.margin, float64(dc.Width())-c.margin
	dc.SetLineWidth(1)
	for v := math.Ceil(c.lo/step) * step; v <= c.hi; v += step {
		y := c.y(v)
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(left, y, right, y)
		dc.Stroke()
		dc.SetRGB(0.3, 0.3, 0.3)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f°C", v), left-4, y, 1, 0.5)
	}
	bottom := float64(dc.Height()) - c.margin
	dc.SetRGB(0.3, 0.3, 0.3)
	dc.DrawLine(left, c.margin, left, bottom)
	dc.DrawLine(left, bottom, right, bottom)
	dc.Stroke()
	dc.DrawStringAnchored(c.t0.Format("15:04:05"), left, bottom+4, 0, 1)
	dc.DrawStringAnchored("+"+c.span.Round(time.Second).String(), right, bottom+4, 1, 1)
}

func (c *chart) threshold(t ds1821.Threshold, v, r, g, b float64) {
	dc := c.dc
	y := c.y(v)
	right := float64(dc.Width()) - c.margin
	dc.SetRGB(r, g, b)
	dc.SetLineWidth(1.5)
	dc.SetDash(6, 4)
	dc.DrawLine(c.margin, y, right, y)
	dc.Stroke()
	dc.SetDash()
	dc.DrawStringAnchored(fmt.Sprintf("%s %.0f°C", t, v), c.margin+4, y-2, 0, 1)
}

func (c *chart) series(points []Point) {
	dc := c.dc
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2)
	for i, p := range points {
		if i == 0 {
			dc.MoveTo(c.x(p.Time), c.y(p.Celsius))
		} else {
			dc.LineTo(c.x(p.Time), c.y(p.Celsius))
		}
	}
	dc.Stroke()
	for _, p := range points {
		dc.DrawCircle(c.x(p.Time), c.y(p.Celsius), 2.5)
	}
	dc.Fill()
}

func newFace(size float64) (font.Face, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("ds1821plot: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}
