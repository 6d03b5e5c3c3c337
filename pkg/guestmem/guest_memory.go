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

// Package guestmem implements guest physical memory for a virtual machine
// monitor: a set of non-overlapping regions of guest physical address space,
// each backed by one host mapping.
//
// Every access is resolved to exactly one region. Accesses that would span
// two regions, even adjacent ones, fail with memerr.ErrOutOfBounds.
//
// The region layout is immutable once built, so a GuestMemory may be used
// from any number of goroutines without locking. The bytes themselves may be
// concurrently modified by vCPUs and devices and are only accessed with
// volatile semantics; racing accesses may observe torn values.
package guestmem

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/btree"
	"golang.org/x/exp/slices"
	"gvisor.dev/guestmem/pkg/cleanup"
	"gvisor.dev/guestmem/pkg/hostarch"
	"gvisor.dev/guestmem/pkg/log"
	"gvisor.dev/guestmem/pkg/memerr"
	"gvisor.dev/guestmem/pkg/memmap"
	"gvisor.dev/guestmem/pkg/memutil"
	"gvisor.dev/guestmem/pkg/refs"
)

// Backing selects how New backs regions with host memory.
type Backing int

const (
	// BackingAnonymous backs each region with its own private anonymous
	// mapping.
	BackingAnonymous Backing = iota

	// BackingSharedMemory backs all regions with a single memfd, sized to the
	// sum of all regions, with each region mapped at its cumulative offset.
	// The file can be shared with other processes, e.g. vhost-user backends.
	// Region sizes must be multiples of the host page size.
	BackingSharedMemory
)

// String implements fmt.Stringer.String.
func (b Backing) String() string {
	switch b {
	case BackingAnonymous:
		return "anonymous"
	case BackingSharedMemory:
		return "shared memory"
	default:
		return fmt.Sprintf("Backing(%d)", int(b))
	}
}

// Options configures New. The zero value is valid.
type Options struct {
	// Backing selects the host memory backing all regions.
	Backing Backing

	// Name names the memfd created for BackingSharedMemory. It defaults to
	// "guest-memory".
	Name string
}

const defaultName = "guest-memory"

// MappingFunc returns the host mapping backing r. The returned mapping must
// be exactly r.Size bytes long.
type MappingFunc func(r Range) (*memmap.Mapping, error)

// region is one guest memory region.
type region struct {
	AddrRange

	// m is the mapping backing the region. It is owned by the region.
	m *memmap.Mapping
}

// GuestMemory is a set of guest memory regions.
//
// The initial reference is held by the caller of New. Dropping the last
// reference with DecRef unmaps all regions.
type GuestMemory struct {
	refs.AtomicRefCount

	// regions is sorted by Start and never modified after construction.
	regions []region

	// size is the sum of all region lengths.
	size uint64

	// file is the shared memory file for BackingSharedMemory, or nil.
	file *os.File
}

var _ refs.RefCounter = (*GuestMemory)(nil)

// teardownLog reports failures to unmap regions. A VMM may tear down many
// GuestMemory objects at once, e.g. while exiting.
var teardownLog = log.BasicRateLimitedLogger(time.Second)

// normalize validates ranges and returns them sorted by base address.
func normalize(ranges []Range) ([]Range, error) {
	if len(ranges) == 0 {
		return nil, memerr.ErrNoRegions
	}
	tree := btree.NewG(2, func(a, b Range) bool {
		return a.Base < b.Base
	})
	for i, r := range ranges {
		if r.Size == 0 {
			return nil, fmt.Errorf("region %d at %v: %w", i, r.Base, memerr.ErrZeroLength)
		}
		if _, ok := r.End(); !ok {
			return nil, fmt.Errorf("region %d at %v of size %#x: %w", i, r.Base, r.Size, memerr.ErrOverflow)
		}
		ar := r.AddrRange()
		conflicts := func(other Range) bool {
			return other.Base == r.Base || other.AddrRange().Overlaps(ar)
		}
		// Ranges in the tree do not overlap each other, so only the nearest
		// neighbour on each side can overlap r.
		var conflict *Range
		tree.DescendLessOrEqual(r, func(other Range) bool {
			if conflicts(other) {
				conflict = &other
			}
			return false
		})
		if conflict == nil {
			tree.AscendGreaterOrEqual(r, func(other Range) bool {
				if conflicts(other) {
					conflict = &other
				}
				return false
			})
		}
		if conflict != nil {
			return nil, fmt.Errorf("region %d %v conflicts with %v: %w", i, ar, conflict.AddrRange(), memerr.ErrOverlap)
		}
		tree.ReplaceOrInsert(r)
	}

	sorted := make([]Range, 0, tree.Len())
	tree.Ascend(func(r Range) bool {
		sorted = append(sorted, r)
		return true
	})
	return sorted, nil
}

// New builds guest memory from ranges, which may be given in any order.
//
// Construction is all or nothing: if any region cannot be created, all
// mappings created so far are unmapped before New returns.
func New(ranges []Range, opts Options) (*GuestMemory, error) {
	sorted, err := normalize(ranges)
	if err != nil {
		return nil, err
	}
	switch opts.Backing {
	case BackingAnonymous:
		return build(sorted, func(_ int, r Range) (*memmap.Mapping, error) {
			return memmap.NewAnonymous(r.Size)
		}, nil)
	case BackingSharedMemory:
		return newSharedMemory(sorted, opts)
	default:
		return nil, memerr.Constructionf(fmt.Errorf("unknown backing %v", opts.Backing), "building guest memory")
	}
}

// NewWithMappings builds guest memory from ranges, obtaining the mapping for
// each region from newMapping. Regions are mapped in ascending address order.
// Mappings returned by newMapping are owned by the GuestMemory, and are
// closed if construction fails.
func NewWithMappings(ranges []Range, newMapping MappingFunc) (*GuestMemory, error) {
	sorted, err := normalize(ranges)
	if err != nil {
		return nil, err
	}
	return build(sorted, func(_ int, r Range) (*memmap.Mapping, error) {
		return newMapping(r)
	}, nil)
}

func newSharedMemory(sorted []Range, opts Options) (*GuestMemory, error) {
	name := opts.Name
	if name == "" {
		name = defaultName
	}
	offsets := make([]int64, len(sorted))
	var total uint64
	for i, r := range sorted {
		if !hostarch.IsPageAligned(r.Size) {
			return nil, fmt.Errorf("region %d %v of size %#x: %w", i, r.AddrRange(), r.Size, memerr.ErrUnaligned)
		}
		offsets[i] = int64(total)
		next := total + r.Size
		if next < total || next > uint64(1<<63-1) {
			return nil, fmt.Errorf("total size of %d regions: %w", len(sorted), memerr.ErrOverflow)
		}
		total = next
	}
	f, err := memutil.CreateSizedMemFD(name, int64(total))
	if err != nil {
		return nil, memerr.Constructionf(err, "creating %s of %s", name, humanize.IBytes(total))
	}
	return build(sorted, func(i int, r Range) (*memmap.Mapping, error) {
		return memmap.NewFromFile(f, offsets[i], r.Size)
	}, f)
}

// build maps every range in sorted, which must already be normalized. file,
// if not nil, is owned by the result, and is closed on failure.
func build(sorted []Range, mapRegion func(i int, r Range) (*memmap.Mapping, error), file *os.File) (*GuestMemory, error) {
	cu := cleanup.Make(func() {
		if file != nil {
			file.Close()
		}
	})
	defer cu.Clean()

	g := &GuestMemory{
		regions: make([]region, 0, len(sorted)),
		file:    file,
	}
	for i, r := range sorted {
		m, err := mapRegion(i, r)
		if err != nil {
			log.Warningf("Guest memory region %d %v could not be mapped, unmapping %d regions: %v", i, r.AddrRange(), len(g.regions), err)
			return nil, memerr.Constructionf(err, "mapping region %d %v", i, r.AddrRange())
		}
		if m == nil {
			log.Warningf("Guest memory region %d %v got no mapping, unmapping %d regions", i, r.AddrRange(), len(g.regions))
			return nil, memerr.Constructionf(fmt.Errorf("no mapping returned"), "mapping region %d %v", i, r.AddrRange())
		}
		cu.Add(func() {
			if err := m.Close(); err != nil {
				log.Warningf("Unmapping region %v: %v", r.AddrRange(), err)
			}
		})
		if m.Size() != r.Size {
			log.Warningf("Guest memory region %d %v got a mapping of %#x bytes, unmapping %d regions", i, r.AddrRange(), m.Size(), len(g.regions)+1)
			return nil, memerr.Constructionf(fmt.Errorf("mapping has %#x bytes, region has %#x", m.Size(), r.Size), "mapping region %d %v", i, r.AddrRange())
		}
		g.regions = append(g.regions, region{AddrRange: r.AddrRange(), m: m})
		g.size += r.Size
	}
	cu.Release()

	if log.IsLogging(log.Debug) {
		for i, r := range g.regions {
			log.Debugf("Guest memory region %d: %v (%s) at host %#x", i, r.AddrRange, humanize.IBytes(r.Length()), r.m.HostAddr())
		}
	}
	log.Infof("Guest memory: %d regions, %s", len(g.regions), humanize.IBytes(g.size))
	return g, nil
}

// DecRef drops a reference. The last reference unmaps every region and closes
// the shared memory file, if any. No access may be in progress or follow.
func (g *GuestMemory) DecRef() {
	g.DecRefWithDestructor(g.destroy)
}

func (g *GuestMemory) destroy() {
	for i := range g.regions {
		r := &g.regions[i]
		if err := r.m.Close(); err != nil {
			teardownLog.Warningf("Unmapping guest memory region %v: %v", r.AddrRange, err)
		}
	}
	if g.file != nil {
		if err := g.file.Close(); err != nil {
			teardownLog.Warningf("Closing guest memory file: %v", err)
		}
	}
}

func compareStart(r region, addr Addr) int {
	return cmp.Compare(r.Start, addr)
}

// find returns the region containing addr, or nil.
func (g *GuestMemory) find(addr Addr) *region {
	i, found := slices.BinarySearchFunc(g.regions, addr, compareStart)
	if found {
		return &g.regions[i]
	}
	if i == 0 {
		return nil
	}
	if r := &g.regions[i-1]; r.Contains(addr) {
		return r
	}
	return nil
}

// resolve returns the region containing all of [addr, addr+n), and the offset
// of addr into it. addr must lie within a region even if n is 0.
func (g *GuestMemory) resolve(addr Addr, n uint64) (*region, uint64, error) {
	r := g.find(addr)
	if r == nil {
		return nil, 0, fmt.Errorf("address %v: %w", addr, memerr.ErrOutOfBounds)
	}
	off := addr.Offset(r.Start)
	if n > r.Length()-off {
		return nil, 0, fmt.Errorf("range [%v, +%#x) crosses the end of region %v: %w", addr, n, r.AddrRange, memerr.ErrOutOfBounds)
	}
	return r, off, nil
}
