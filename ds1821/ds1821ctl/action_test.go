// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds1821ctl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAction(t *testing.T) {
	names := []string{"scan", "probe", "temp", "status", "set-th", "set-tl", "set-oneshot", "fix"}
	got := make([]string, 0, len(names))
	for _, a := range Actions() {
		got = append(got, a.String())
		if a.Short() == "" {
			t.Fatalf("%s has no description", a)
		}
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	for i, n := range names {
		a, err := ParseAction(n)
		if err != nil || a != Action(i) {
			t.Fatalf("%s: %s %v", n, a, err)
		}
	}
	if _, err := ParseAction("read-all"); err == nil {
		t.Fatal("expected error")
	}
	if s := Action(42).String(); s != "Action(42)" {
		t.Fatal(s)
	}
}

func TestParseThreshold(t *testing.T) {
	data := []struct {
		in   string
		want int8
		ok   bool
	}{
		{"0", 0, true},
		{"-55", -55, true},
		{"125", 125, true},
		{" 30 ", 30, true},
		{"-56", 0, false},
		{"126", 0, false},
		{"12.5", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}
	for i, line := range data {
		got, err := ParseThreshold(line.in)
		if (err == nil) != line.ok || got != line.want {
			t.Fatalf("#%d %q: %d %v", i, line.in, got, err)
		}
	}
}

func TestParseRequest(t *testing.T) {
	r, err := ParseRequest("set-tl", []string{"-10"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Action != SetTL || r.TH != nil || r.TL == nil || *r.TL != -10 {
		t.Fatal(r)
	}
	r, err = ParseRequest("set-th", []string{"30", "set-tl", "20"})
	if err != nil {
		t.Fatal(err)
	}
	if r.TH == nil || *r.TH != 30 || r.TL == nil || *r.TL != 20 {
		t.Fatal(r)
	}
	if r, err = ParseRequest("fix", nil); err != nil || r.Action != Fix {
		t.Fatal(r, err)
	}
	bad := []struct {
		name string
		args []string
	}{
		{"set-th", nil},
		{"set-th", []string{"200"}},
		{"set-th", []string{"30", "set-th", "20"}},
		{"set-th", []string{"30", "probe", "20"}},
		{"set-th", []string{"30", "set-tl"}},
		{"set-tl", []string{"5", "set-th", "x"}},
		{"probe", []string{"1"}},
		{"nope", nil},
	}
	for i, line := range bad {
		if _, err := ParseRequest(line.name, line.args); err == nil {
			t.Fatalf("#%d: expected error", i)
		}
	}
}
