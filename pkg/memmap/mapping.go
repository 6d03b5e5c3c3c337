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

// Package memmap provides Mapping, a single host memory mapping that backs
// part of guest memory.
//
// All accesses to mapped bytes are volatile (see package safemem), since the
// memory may be concurrently modified by vCPUs or devices. Concurrent
// accesses to overlapping ranges may observe torn values; this is not an
// error.
//
// A Mapping must not be closed while any access to it is in progress.
package memmap

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
	"gvisor.dev/guestmem/pkg/hostarch"
	"gvisor.dev/guestmem/pkg/memerr"
	"gvisor.dev/guestmem/pkg/memutil"
	"gvisor.dev/guestmem/pkg/plaindata"
	"gvisor.dev/guestmem/pkg/safemem"
)

// Mapping owns one host memory mapping of a fixed size. Offsets passed to
// its methods are relative to the start of the mapping.
type Mapping struct {
	// data is the mapped memory. It is only accessed through safemem.
	data []byte

	// file is set if the mapping was created by NewFromFile.
	file mmap.MMap

	// offset is the offset into the backing file, or 0.
	offset int64

	released atomic.Bool
}

// NewAnonymous creates a private anonymous mapping of length bytes. Pages are
// zero filled and are only committed on first touch.
func NewAnonymous(length uint64) (*Mapping, error) {
	if length == 0 {
		return nil, fmt.Errorf("anonymous mapping: %w", memerr.ErrZeroLength)
	}
	data, err := memutil.MapAnonymous(length)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// NewFromFile creates a shared read-write mapping of length bytes of f,
// starting at offset. offset must be page aligned. f may be closed once the
// mapping exists.
func NewFromFile(f *os.File, offset int64, length uint64) (*Mapping, error) {
	if length == 0 {
		return nil, fmt.Errorf("mapping %s: %w", f.Name(), memerr.ErrZeroLength)
	}
	if offset < 0 || !hostarch.IsPageAligned(offset) {
		return nil, fmt.Errorf("mapping %s at offset %#x: %w", f.Name(), offset, memerr.ErrUnaligned)
	}
	if length > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("mapping %s of %d bytes: %w", f.Name(), length, memerr.ErrOverflow)
	}
	mm, err := mmap.MapRegion(f, int(length), mmap.RDWR, 0, offset)
	if err != nil {
		return nil, fmt.Errorf("mapping %s at offset %#x: %w", f.Name(), offset, memerr.FromErrno("mmap", err))
	}
	return &Mapping{
		data:   mm,
		file:   mm,
		offset: offset,
	}, nil
}

// Size returns the length of the mapping in bytes.
func (m *Mapping) Size() uint64 {
	return uint64(len(m.data))
}

// FileOffset returns the offset of the mapping into its backing file. It is
// 0 for anonymous mappings.
func (m *Mapping) FileOffset() int64 {
	return m.offset
}

// checkRange returns an error unless [off, off+n) lies within the mapping.
func (m *Mapping) checkRange(off, n uint64) error {
	end := off + n
	if end < off || end > m.Size() {
		return fmt.Errorf("range [%#x, +%#x) of mapping of size %#x: %w", off, n, m.Size(), memerr.ErrOutOfBounds)
	}
	return nil
}

// block returns the volatile Block for [off, off+n).
//
// Preconditions: m.checkRange(off, n) == nil.
func (m *Mapping) block(off, n uint64) safemem.Block {
	return safemem.BlockFromVolatileSlice(m.data[off : off+n])
}

// BlockSeq returns a volatile view of [off, off+n).
func (m *Mapping) BlockSeq(off, n uint64) (safemem.BlockSeq, error) {
	if err := m.checkRange(off, n); err != nil {
		return safemem.BlockSeq{}, err
	}
	return safemem.BlockSeqOf(m.block(off, n)), nil
}

// ReadSlice copies exactly len(dst) bytes starting at off into dst.
func (m *Mapping) ReadSlice(dst []byte, off uint64) error {
	if err := m.checkRange(off, uint64(len(dst))); err != nil {
		return err
	}
	_, err := safemem.Copy(safemem.BlockFromSafeSlice(dst), m.block(off, uint64(len(dst))))
	return err
}

// WriteSlice copies all of src into the mapping starting at off.
func (m *Mapping) WriteSlice(src []byte, off uint64) error {
	if err := m.checkRange(off, uint64(len(src))); err != nil {
		return err
	}
	_, err := safemem.Copy(m.block(off, uint64(len(src))), safemem.BlockFromSafeSlice(src))
	return err
}

// available returns how many of want bytes starting at off lie within the
// mapping.
func (m *Mapping) available(off uint64, want int) (uint64, error) {
	if off > m.Size() {
		return 0, fmt.Errorf("offset %#x of mapping of size %#x: %w", off, m.Size(), memerr.ErrOutOfBounds)
	}
	return min(uint64(want), m.Size()-off), nil
}

// Read copies up to len(dst) bytes starting at off into dst, stopping at the
// end of the mapping. It returns the number of bytes copied.
func (m *Mapping) Read(dst []byte, off uint64) (int, error) {
	n, err := m.available(off, len(dst))
	if err != nil {
		return 0, err
	}
	return safemem.Copy(safemem.BlockFromSafeSlice(dst), m.block(off, n))
}

// Write copies up to len(src) bytes from src into the mapping starting at
// off, stopping at the end of the mapping. It returns the number of bytes
// copied.
func (m *Mapping) Write(src []byte, off uint64) (int, error) {
	n, err := m.available(off, len(src))
	if err != nil {
		return 0, err
	}
	return safemem.Copy(m.block(off, n), safemem.BlockFromSafeSlice(src))
}

// Zero sets [off, off+n) to zero.
func (m *Mapping) Zero(off, n uint64) error {
	dsts, err := m.BlockSeq(off, n)
	if err != nil {
		return err
	}
	_, err = safemem.ZeroSeq(dsts)
	return err
}

// ReadObj reads a T stored at off.
func ReadObj[T plaindata.Data](m *Mapping, off uint64) (T, error) {
	var v T
	err := m.ReadSlice(plaindata.AsBytes(&v), off)
	return v, err
}

// WriteObj stores v at off.
func WriteObj[T plaindata.Data](m *Mapping, v T, off uint64) error {
	return m.WriteSlice(plaindata.AsBytes(&v), off)
}

// ReadFromStream reads up to n bytes from r into [off, off+n). It stops
// early, without error, if r reaches EOF, and returns the number of bytes
// transferred.
func (m *Mapping) ReadFromStream(off uint64, r io.Reader, n uint64) (uint64, error) {
	dsts, err := m.BlockSeq(off, n)
	if err != nil {
		return 0, err
	}
	done, err := safemem.ReadFullToBlocks(safemem.FromIOReader{Reader: r}, dsts)
	if err == io.EOF {
		err = nil
	}
	return done, err
}

// ReadExactFromStream reads exactly n bytes from r into [off, off+n). If r
// cannot supply n bytes, a *memerr.ShortIOError is returned.
func (m *Mapping) ReadExactFromStream(off uint64, r io.Reader, n uint64) error {
	dsts, err := m.BlockSeq(off, n)
	if err != nil {
		return err
	}
	done, err := safemem.ReadFullToBlocks(safemem.FromIOReader{Reader: r}, dsts)
	if done == n {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &memerr.ShortIOError{Moved: done, Want: n, Err: err}
}

// WriteToStream writes up to n bytes from [off, off+n) to w and returns the
// number of bytes transferred.
func (m *Mapping) WriteToStream(off uint64, w io.Writer, n uint64) (uint64, error) {
	srcs, err := m.BlockSeq(off, n)
	if err != nil {
		return 0, err
	}
	done, err := safemem.WriteFullFromBlocks(safemem.FromIOWriter{Writer: w}, srcs)
	if err == io.ErrShortWrite {
		err = nil
	}
	return done, err
}

// WriteAllToStream writes exactly n bytes from [off, off+n) to w. If w does
// not accept all n bytes, a *memerr.ShortIOError is returned.
func (m *Mapping) WriteAllToStream(off uint64, w io.Writer, n uint64) error {
	srcs, err := m.BlockSeq(off, n)
	if err != nil {
		return err
	}
	done, err := safemem.WriteFullFromBlocks(safemem.FromIOWriter{Writer: w}, srcs)
	if done == n {
		return nil
	}
	if err == nil {
		err = io.ErrShortWrite
	}
	return &memerr.ShortIOError{Moved: done, Want: n, Err: err}
}

// Sync flushes the mapping to its backing file with msync(MS_SYNC).
func (m *Mapping) Sync() error {
	var err error
	if m.file != nil {
		err = m.file.Flush()
	} else {
		err = unix.Msync(m.data, unix.MS_SYNC)
	}
	return memerr.FromErrno("msync", err)
}

// Discard releases the host pages backing [off, off+n), which must be page
// aligned. Discarded pages read as zero afterwards; for file mappings the
// file's pages are released too.
func (m *Mapping) Discard(off, n uint64) error {
	if err := m.checkRange(off, n); err != nil {
		return err
	}
	if !hostarch.IsPageAligned(off) || !hostarch.IsPageAligned(n) {
		return fmt.Errorf("discarding [%#x, +%#x): %w", off, n, memerr.ErrUnaligned)
	}
	if n == 0 {
		return nil
	}
	advice := unix.MADV_DONTNEED
	if m.file != nil {
		advice = unix.MADV_REMOVE
	}
	if err := unix.Madvise(m.data[off:off+n], advice); err != nil {
		return memerr.FromErrno("madvise", err)
	}
	return nil
}

// Released returns true once Close has been called.
func (m *Mapping) Released() bool {
	return m.released.Load()
}

// Close unmaps the mapping. Only the first call unmaps; later calls return
// nil.
func (m *Mapping) Close() error {
	if m.released.Swap(true) {
		return nil
	}
	var err error
	if m.file != nil {
		err = m.file.Unmap()
	} else {
		err = memutil.UnmapSlice(m.data)
	}
	if err != nil {
		return memerr.FromErrno("munmap", err)
	}
	return nil
}
