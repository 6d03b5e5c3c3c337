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

// Package memutil provides utilities for working with shared memory files and
// raw host mappings.
package memutil

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
	"gvisor.dev/guestmem/pkg/memerr"
)

// CreateMemFD creates a memfd file and returns it. The file is not sized;
// callers truncate it to the length they need.
func CreateMemFD(name string, flags int) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, flags)
	if err != nil {
		return nil, memerr.FromErrno("memfd_create", err)
	}
	return os.NewFile(uintptr(fd), "memfd:"+name), nil
}

// CreateSizedMemFD is like CreateMemFD, but also sizes the file to size bytes.
func CreateSizedMemFD(name string, size int64) (*os.File, error) {
	f, err := CreateMemFD(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		f.Close()
		return nil, memerr.FromErrno("ftruncate", err)
	}
	return f, nil
}

// MapFile returns a memory mapping configured by the given options as per
// mmap(2).
func MapFile(addr, size, prot, flags, fd, offset uintptr) (uintptr, error) {
	m, _, e := unix.RawSyscall6(unix.SYS_MMAP, addr, size, prot, flags, fd, offset)
	if e != 0 {
		return 0, memerr.FromErrno("mmap", e)
	}
	return m, nil
}

// MapSlice is like MapFile, but returns a slice instead of a uintptr.
func MapSlice(addr, size, prot, flags, fd, offset uintptr) ([]byte, error) {
	addr, err := MapFile(addr, size, prot, flags, fd, offset)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// MapAnonymous returns a private anonymous read-write mapping of size bytes.
// Physical pages are only committed on first touch (MAP_NORESERVE), so the
// mapping may be far larger than available memory.
func MapAnonymous(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("anonymous mapping: %w", memerr.ErrZeroLength)
	}
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("anonymous mapping of %d bytes: %w", size, memerr.ErrOverflow)
	}
	return MapSlice(0, uintptr(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE,
		^uintptr(0), 0)
}

// UnmapSlice unmaps a mapping returned by MapSlice.
func UnmapSlice(slice []byte) error {
	ptr := unsafe.SliceData(slice)
	_, _, e := unix.RawSyscall6(unix.SYS_MUNMAP, uintptr(unsafe.Pointer(ptr)), uintptr(cap(slice)), 0, 0, 0, 0)
	if e != 0 {
		return memerr.FromErrno("munmap", e)
	}
	return nil
}
