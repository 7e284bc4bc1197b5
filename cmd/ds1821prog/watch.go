// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821ctl"
	"github.com/GermanBionicSystems/ds1821/ds1821/ds1821plot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// watch measures every --loop seconds until ctx is cancelled. Failed reads
// are reported and the loop goes on.
func (e *env) watch(ctx context.Context, p *printer, quiet bool, measure func() (*ds1821ctl.Measurement, error)) error {
	var m *metrics
	if e.metrics != "" {
		m = newMetrics()
		srv, err := serveMetrics(e.metrics, m, e.stderr)
		if err != nil {
			return err
		}
		defer srv.Close()
		if !quiet {
			p.printf("  Metrics on http://%s/metrics\n", e.metrics)
		}
	}
	if !quiet {
		p.printf("  Reading every %s, Ctrl+C to stop.\n\n", e.loopInterval())
	}
	var points []ds1821plot.Point
	var th *ds1821.Thresholds
	err := ds1821ctl.Watch(ctx, e.loopInterval(), measure, func(r *ds1821ctl.Measurement, err error) {
		m.observe(r, err)
		if err != nil {
			fmt.Fprintf(e.stderr, "  read failed: %v\n", err)
			return
		}
		p.reading(r, quiet)
		points = append(points, ds1821plot.Point{Time: r.Time, Celsius: r.Sample.Celsius()})
		if r.Thresholds != nil {
			th = r.Thresholds
		}
	})
	if err != nil {
		return err
	}
	if !quiet {
		p.printf("\nInterrupted.\n")
	}
	if e.plot == "" {
		return nil
	}
	if len(points) == 0 {
		fmt.Fprintf(e.stderr, "  no reading, %s not written\n", e.plot)
		return nil
	}
	return writePlot(e.plot, points, th)
}

func writePlot(name string, points []ds1821plot.Point, th *ds1821.Thresholds) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	opts := ds1821plot.DefaultOpts
	opts.Thresholds = th
	if err := ds1821plot.WritePNG(f, points, &opts); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return err
	}
	return f.Close()
}

// metrics exports the readings of the continuous mode.
type metrics struct {
	reg         *prometheus.Registry
	temperature prometheus.Gauge
	highAlarm   prometheus.Gauge
	lowAlarm    prometheus.Gauge
	reads       *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ds1821_temperature_celsius",
			Help: "Last temperature read from the DS1821.",
		}),
		highAlarm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ds1821_high_alarm",
			Help: "1 when the THF flag is set.",
		}),
		lowAlarm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ds1821_low_alarm",
			Help: "1 when the TLF flag is set.",
		}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ds1821_reads_total",
			Help: "Temperature reads by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(m.temperature, m.highAlarm, m.lowAlarm, m.reads)
	return m
}

// observe records a reading. It is a no-op on a nil receiver.
func (m *metrics) observe(r *ds1821ctl.Measurement, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reads.WithLabelValues("error").Inc()
		return
	}
	m.reads.WithLabelValues("ok").Inc()
	m.temperature.Set(r.Sample.Celsius())
	m.highAlarm.Set(float64(b2i(r.Status.HighAlarm())))
	m.lowAlarm.Set(float64(b2i(r.Status.LowAlarm())))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func serveMetrics(addr string, m *metrics, stderr io.Writer) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "  metrics: %v\n", err)
		}
	}()
	return srv, nil
}
