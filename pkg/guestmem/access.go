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
	"io"

	"gvisor.dev/guestmem/pkg/memmap"
	"gvisor.dev/guestmem/pkg/plaindata"
	"gvisor.dev/guestmem/pkg/safemem"
)

// ReadSlice copies exactly len(dst) bytes starting at addr into dst.
func (g *GuestMemory) ReadSlice(dst []byte, addr Addr) error {
	r, off, err := g.resolve(addr, uint64(len(dst)))
	if err != nil {
		return err
	}
	return r.m.ReadSlice(dst, off)
}

// WriteSlice copies all of src to guest memory starting at addr.
func (g *GuestMemory) WriteSlice(src []byte, addr Addr) error {
	r, off, err := g.resolve(addr, uint64(len(src)))
	if err != nil {
		return err
	}
	return r.m.WriteSlice(src, off)
}

// Read copies up to len(dst) bytes starting at addr into dst, stopping at the
// end of the region containing addr. It returns the number of bytes copied.
func (g *GuestMemory) Read(dst []byte, addr Addr) (int, error) {
	r, off, err := g.resolve(addr, 0)
	if err != nil {
		return 0, err
	}
	return r.m.Read(dst, off)
}

// Write copies up to len(src) bytes from src to guest memory starting at
// addr, stopping at the end of the region containing addr. It returns the
// number of bytes copied.
func (g *GuestMemory) Write(src []byte, addr Addr) (int, error) {
	r, off, err := g.resolve(addr, 0)
	if err != nil {
		return 0, err
	}
	return r.m.Write(src, off)
}

// Zero sets [addr, addr+n) to zero.
func (g *GuestMemory) Zero(addr Addr, n uint64) error {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return err
	}
	return r.m.Zero(off, n)
}

// BlockSeq returns a volatile view of [addr, addr+n), for callers that move
// guest memory with safemem directly.
func (g *GuestMemory) BlockSeq(addr Addr, n uint64) (safemem.BlockSeq, error) {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return safemem.BlockSeq{}, err
	}
	return r.m.BlockSeq(off, n)
}

// Copy copies n bytes from [src, src+n) to [dst, dst+n). Each range must lie
// within one region, but the two may lie in different regions. If the ranges
// overlap, the bytes stored at dst are unspecified.
func (g *GuestMemory) Copy(dst, src Addr, n uint64) error {
	dsts, err := g.BlockSeq(dst, n)
	if err != nil {
		return err
	}
	srcs, err := g.BlockSeq(src, n)
	if err != nil {
		return err
	}
	w := safemem.BlockSeqWriter{Blocks: dsts}
	_, err = safemem.WriteFullFromBlocks(&w, srcs)
	return err
}

// ReadObj reads a T stored at addr.
func ReadObj[T plaindata.Data](g *GuestMemory, addr Addr) (T, error) {
	r, off, err := g.resolve(addr, uint64(plaindata.Size[T]()))
	if err != nil {
		var zero T
		return zero, err
	}
	return memmap.ReadObj[T](r.m, off)
}

// WriteObj stores v at addr.
func WriteObj[T plaindata.Data](g *GuestMemory, v T, addr Addr) error {
	r, off, err := g.resolve(addr, uint64(plaindata.Size[T]()))
	if err != nil {
		return err
	}
	return memmap.WriteObj(r.m, v, off)
}

// ReadFromStream reads up to n bytes from src into [addr, addr+n). It stops
// early, without error, if src reaches EOF, and returns the number of bytes
// transferred.
func (g *GuestMemory) ReadFromStream(addr Addr, src io.Reader, n uint64) (uint64, error) {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return 0, err
	}
	return r.m.ReadFromStream(off, src, n)
}

// ReadExactFromStream reads exactly n bytes from src into [addr, addr+n). If
// src cannot supply n bytes, a *memerr.ShortIOError is returned.
func (g *GuestMemory) ReadExactFromStream(addr Addr, src io.Reader, n uint64) error {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return err
	}
	return r.m.ReadExactFromStream(off, src, n)
}

// WriteToStream writes up to n bytes from [addr, addr+n) to dst and returns
// the number of bytes transferred.
func (g *GuestMemory) WriteToStream(addr Addr, dst io.Writer, n uint64) (uint64, error) {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return 0, err
	}
	return r.m.WriteToStream(off, dst, n)
}

// WriteAllToStream writes exactly n bytes from [addr, addr+n) to dst. If dst
// does not accept all n bytes, a *memerr.ShortIOError is returned.
func (g *GuestMemory) WriteAllToStream(addr Addr, dst io.Writer, n uint64) error {
	r, off, err := g.resolve(addr, n)
	if err != nil {
		return err
	}
	return r.m.WriteAllToStream(off, dst, n)
}
