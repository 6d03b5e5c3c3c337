// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guestmem

import (
	"errors"
	"math"
	"testing"

	"gvisor.dev/guestmem/pkg/memerr"
)

func TestAddLength(t *testing.T) {
	for _, test := range []struct {
		addr   Addr
		length uint64
		want   Addr
		wantOK bool
	}{
		{0x1000, 0x200, 0x1200, true},
		{0, 0, 0, true},
		{math.MaxUint64, 0, math.MaxUint64, true},
		{math.MaxUint64 - 1, 1, math.MaxUint64, true},
		{math.MaxUint64, 1, 0, false},
		{1, math.MaxUint64, 0, false},
	} {
		got, ok := test.addr.AddLength(test.length)
		if ok != test.wantOK || (ok && got != test.want) {
			t.Errorf("%v.AddLength(%#x): got (%v, %t), wanted (%v, %t)", test.addr, test.length, got, ok, test.want, test.wantOK)
		}
		_, err := test.addr.CheckedAdd(test.length)
		if gotErr := err != nil; gotErr == test.wantOK {
			t.Errorf("%v.CheckedAdd(%#x): got err %v, wanted ok %t", test.addr, test.length, err, test.wantOK)
		}
		if err != nil && !errors.Is(err, memerr.ErrAddrOverflow) {
			t.Errorf("%v.CheckedAdd(%#x): got %v, wanted %v", test.addr, test.length, err, memerr.ErrAddrOverflow)
		}
		if kind, ok := memerr.KindOf(err); err != nil && (!ok || kind != memerr.OutOfBounds) {
			t.Errorf("KindOf(%v): got (%v, %t), wanted (%v, true)", err, kind, ok, memerr.OutOfBounds)
		}
	}
}

func TestSub(t *testing.T) {
	if got, ok := Addr(0x1000).Sub(0x10); !ok || got != 0xff0 {
		t.Errorf("Sub: got (%v, %t), wanted (0xff0, true)", got, ok)
	}
	if _, ok := Addr(0x10).Sub(0x11); ok {
		t.Errorf("Sub below zero succeeded")
	}
	_, err := Addr(0).CheckedSub(1)
	if !errors.Is(err, memerr.ErrAddrOverflow) {
		t.Errorf("CheckedSub below zero: got %v, wanted %v", err, memerr.ErrAddrOverflow)
	}
	if kind, _ := memerr.KindOf(err); kind != memerr.OutOfBounds {
		t.Errorf("KindOf(%v): got %v, wanted %v", err, kind, memerr.OutOfBounds)
	}
	if got := Addr(0x1234).Offset(0x1000); got != 0x234 {
		t.Errorf("Offset: got %#x, wanted 0x234", got)
	}
}

func TestAddrRange(t *testing.T) {
	r := AddrRange{0x1000, 0x2000}
	for _, test := range []struct {
		name  string
		other AddrRange
		want  bool
	}{
		{"same", AddrRange{0x1000, 0x2000}, true},
		{"inside", AddrRange{0x1800, 0x1900}, true},
		{"straddles start", AddrRange{0xf00, 0x1001}, true},
		{"straddles end", AddrRange{0x1fff, 0x3000}, true},
		{"touches start", AddrRange{0x0, 0x1000}, false},
		{"touches end", AddrRange{0x2000, 0x3000}, false},
		{"disjoint", AddrRange{0x5000, 0x6000}, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := r.Overlaps(test.other); got != test.want {
				t.Errorf("%v.Overlaps(%v): got %t, wanted %t", r, test.other, got, test.want)
			}
			if got := test.other.Overlaps(r); got != test.want {
				t.Errorf("%v.Overlaps(%v): got %t, wanted %t", test.other, r, got, test.want)
			}
		})
	}
	if !r.Contains(0x1fff) || r.Contains(0x2000) {
		t.Errorf("%v.Contains is wrong at the end of the range", r)
	}
	if !r.IsSupersetOf(AddrRange{0x1000, 0x1000}) || r.IsSupersetOf(AddrRange{0x1000, 0x2001}) {
		t.Errorf("%v.IsSupersetOf is wrong", r)
	}
	if got := r.String(); got != "[0x1000, 0x2000)" {
		t.Errorf("String: got %q", got)
	}
}

func TestRangeEnd(t *testing.T) {
	if end, ok := (Range{Base: 0x8000_0000, Size: 0x8000_0000}).End(); !ok || end != 0x1_0000_0000 {
		t.Errorf("End: got (%v, %t), wanted (0x100000000, true)", end, ok)
	}
	if _, ok := (Range{Base: math.MaxUint64 - 0xfff, Size: 0x1000}).End(); ok {
		t.Errorf("End of a range reaching the top of the address space succeeded")
	}
}
