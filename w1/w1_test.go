// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GermanBionicSystems/ds1821/ds1821"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/onewire"
)

// fakeSysfs creates a devices directory holding the given slaves, each rw
// file prefilled with content.
func fakeSysfs(t *testing.T, slaves map[string][]byte) string {
	dir := t.TempDir()
	for id, content := range slaves {
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, id, "rw"), content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "w1_bus_master1"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestList(t *testing.T) {
	dir := fakeSysfs(t, map[string][]byte{
		"22-0000000abcde": nil,
		"22-000000012345": nil,
		"28-00000aa01234": nil,
	})
	ids, err := List(dir, ds1821.Family)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"22-000000012345", "22-0000000abcde"}, ids); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	id, err := Find(dir, 0x28)
	if err != nil || id != "28-00000aa01234" {
		t.Fatalf("%q %v", id, err)
	}
	if _, err := Find(dir, 0x10); err == nil {
		t.Fatal("expected error")
	}
	if _, err := List(filepath.Join(dir, "missing"), 0x22); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseID(t *testing.T) {
	a, err := ParseID("28-0000070e41ac")
	if err != nil {
		t.Fatal(err)
	}
	if a != onewire.Address(0x740000070e41ac28) {
		t.Fatalf("0x%016x", uint64(a))
	}
	for _, id := range []string{"", "28", "28-12", "zz-0000070e41ac", "28-00000z0e41ac", "280-000070e41ac"} {
		if _, err := ParseID(id); err == nil {
			t.Errorf("%q: expected error", id)
		}
	}
}

func TestSlave_Tx(t *testing.T) {
	var sleeps []time.Duration
	sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	defer func() { sleep = time.Sleep }()

	// A regular file stands for the rw attribute: the write lands at offset 0
	// and the read returns the following byte.
	dir := fakeSysfs(t, map[string][]byte{
		"22-000000000001": {0x00, 0x81},
		"22-000000000002": nil,
	})
	s, err := Open(dir, "22-000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if str := s.String(); str != "w1(22-000000000001)" {
		t.Fatal(str)
	}
	if byte(s.Address()) != ds1821.Family {
		t.Fatal(s.Address())
	}
	d := ds1821.NewConn(s, nil)
	st, err := d.ReadStatus()
	if err != nil {
		t.Fatal(err)
	}
	if st != ds1821.Done|ds1821.OneShot {
		t.Fatal(st)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "22-000000000001", "rw"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0xac, 0x81}, raw); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{settle}, sleeps); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	// Nothing to read back.
	s, err = Open(dir, "22-000000000002")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds1821.NewConn(s, nil).ReadTemperature(); err == nil {
		t.Fatal("expected short read")
	}
}

func TestOpen_fail(t *testing.T) {
	dir := fakeSysfs(t, nil)
	if _, err := Open(dir, "22-000000000001"); err == nil {
		t.Fatal("missing slave")
	}
	if _, err := Open(dir, "bogus"); err == nil {
		t.Fatal("invalid id")
	}
}
