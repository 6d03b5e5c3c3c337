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
	"os"

	"github.com/dustin/go-humanize"
	"gvisor.dev/guestmem/pkg/hostarch"
	"gvisor.dev/guestmem/pkg/memerr"
)

// RegionInfo describes one region, as reported by ForEachRegion.
type RegionInfo struct {
	// Index is the position of the region in ascending address order.
	Index int

	// Range is the guest physical address range of the region.
	Range AddrRange

	// HostAddr is the host virtual address the region starts at.
	HostAddr uintptr

	// FileOffset is the region's offset into the shared memory file. It is 0
	// for anonymous regions.
	FileOffset int64
}

// String implements fmt.Stringer.String.
func (ri RegionInfo) String() string {
	return fmt.Sprintf("region %d: %v (%s) host %#x offset %#x", ri.Index, ri.Range, humanize.IBytes(ri.Range.Length()), ri.HostAddr, ri.FileOffset)
}

// NumRegions returns the number of regions.
func (g *GuestMemory) NumRegions() int {
	return len(g.regions)
}

// MemorySize returns the total size of all regions in bytes.
func (g *GuestMemory) MemorySize() uint64 {
	return g.size
}

// EndAddr returns the end of the highest region.
func (g *GuestMemory) EndAddr() Addr {
	return g.regions[len(g.regions)-1].End
}

// AddressInRange returns true if addr lies within a region.
func (g *GuestMemory) AddressInRange(addr Addr) bool {
	return g.find(addr) != nil
}

// CheckedOffset returns addr+off. ok is false if the result does not lie
// within a region, or if addr+off overflows. The two addresses need not be in
// the same region.
func (g *GuestMemory) CheckedOffset(addr Addr, off uint64) (Addr, bool) {
	end, ok := addr.AddLength(off)
	if !ok || !g.AddressInRange(end) {
		return 0, false
	}
	return end, true
}

// HostAddress returns the host virtual address that backs addr.
func (g *GuestMemory) HostAddress(addr Addr) (uintptr, error) {
	r, off, err := g.resolve(addr, 0)
	if err != nil {
		return 0, err
	}
	return r.m.HostAddr() + uintptr(off), nil
}

// ForEachRegion calls fn for each region in ascending address order, and
// stops at the first error, which it returns.
func (g *GuestMemory) ForEachRegion(fn func(RegionInfo) error) error {
	for i := range g.regions {
		r := &g.regions[i]
		err := fn(RegionInfo{
			Index:      i,
			Range:      r.AddrRange,
			HostAddr:   r.m.HostAddr(),
			FileOffset: r.m.FileOffset(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SharedMemory returns the file backing all regions if the GuestMemory was
// built with BackingSharedMemory, or nil. The file remains owned by g.
func (g *GuestMemory) SharedMemory() *os.File {
	return g.file
}

// Sync flushes every region to its backing file.
func (g *GuestMemory) Sync() error {
	for i := range g.regions {
		r := &g.regions[i]
		if err := r.m.Sync(); err != nil {
			return fmt.Errorf("syncing region %v: %w", r.AddrRange, err)
		}
	}
	return nil
}

// Discard releases the host pages backing [addr, addr+n) so that they read as
// zero afterwards. The range must lie within one region and be page aligned.
func (g *GuestMemory) Discard(addr Addr, n uint64) error {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return err
	}
	if !hostarch.IsPageAligned(off) || !hostarch.IsPageAligned(n) {
		return fmt.Errorf("discarding [%v, +%#x): %w", addr, n, memerr.ErrUnaligned)
	}
	return r.m.Discard(off, n)
}
