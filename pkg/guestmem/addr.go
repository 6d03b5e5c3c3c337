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
	"fmt"

	"gvisor.dev/guestmem/pkg/memerr"
)

// Addr is a guest physical address.
type Addr uint64

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Since the resulting end is exclusive, a range that extends to the very end
// of the address space has end == 0 and ok == false. Such ranges are not
// representable as regions.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// Sub subtracts n from v. ok is false if the result would be negative.
func (v Addr) Sub(n uint64) (Addr, bool) {
	if uint64(v) < n {
		return 0, false
	}
	return v - Addr(n), true
}

// CheckedAdd is like AddLength, but returns memerr.ErrAddrOverflow instead
// of false.
func (v Addr) CheckedAdd(n uint64) (Addr, error) {
	end, ok := v.AddLength(n)
	if !ok {
		return 0, fmt.Errorf("%v + %#x: %w", v, n, memerr.ErrAddrOverflow)
	}
	return end, nil
}

// CheckedSub is like Sub, but returns memerr.ErrAddrOverflow instead of
// false.
func (v Addr) CheckedSub(n uint64) (Addr, error) {
	r, ok := v.Sub(n)
	if !ok {
		return 0, fmt.Errorf("%v - %#x: %w", v, n, memerr.ErrAddrOverflow)
	}
	return r, nil
}

// Offset returns v - base.
//
// Preconditions: base <= v.
func (v Addr) Offset(base Addr) uint64 {
	return uint64(v - base)
}

// ToRange returns [v, v+length).
func (v Addr) ToRange(length uint64) (AddrRange, bool) {
	end, ok := v.AddLength(length)
	return AddrRange{v, end}, ok
}

// Uint64 returns v as a uint64.
func (v Addr) Uint64() uint64 {
	return uint64(v)
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// AddrRange is a range of guest addresses [Start, End).
type AddrRange struct {
	Start Addr
	End   Addr
}

// Length returns the length of the range.
func (r AddrRange) Length() uint64 {
	return uint64(r.End - r.Start)
}

// Contains returns true if x is in r.
func (r AddrRange) Contains(x Addr) bool {
	return r.Start <= x && x < r.End
}

// Overlaps returns true if r and r2 overlap.
func (r AddrRange) Overlaps(r2 AddrRange) bool {
	return r.Start < r2.End && r2.Start < r.End
}

// IsSupersetOf returns true if r is a superset of r2; that is, the range r2 is
// contained within r.
func (r AddrRange) IsSupersetOf(r2 AddrRange) bool {
	return r.Start <= r2.Start && r.End >= r2.End
}

// String implements fmt.Stringer.String.
func (r AddrRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint64(r.Start), uint64(r.End))
}

// Range describes one guest memory region: Size bytes starting at Base.
type Range struct {
	Base Addr
	Size uint64
}

// End returns the exclusive end address of r. ok is false if it overflows.
func (r Range) End() (Addr, bool) {
	return r.Base.AddLength(r.Size)
}

// AddrRange returns r as an AddrRange.
//
// Preconditions: r.End() does not overflow.
func (r Range) AddrRange() AddrRange {
	ar, _ := r.Base.ToRange(r.Size)
	return ar
}
