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

//go:build amd64 || arm64
// +build amd64 arm64

package safemem

import (
	"sync/atomic"
	"unsafe"

	"gvisor.dev/guestmem/pkg/hostarch"
)

// Volatile memory is only ever touched through sync/atomic, so that the
// compiler cannot elide or tear the individual accesses. Aligned
// 64-bit words are moved whole. Unaligned edges are moved a byte at a time
// through the aligned 32-bit word that contains them; stores use
// compare-and-swap so that concurrent writers of neighbouring bytes are not
// clobbered.
//
// The non-volatile side of a copy is a Go byte slice and is accessed through
// hostarch.ByteOrder, which makes no alignment assumptions.

func loadByte(p unsafe.Pointer) byte {
	off := uintptr(p) & 3
	w := atomic.LoadUint32((*uint32)(unsafe.Add(p, -int(off))))
	return byte(w >> (off * 8))
}

func storeByte(p unsafe.Pointer, v byte) {
	off := uintptr(p) & 3
	w := (*uint32)(unsafe.Add(p, -int(off)))
	shift := off * 8
	for {
		old := atomic.LoadUint32(w)
		val := old&^(0xff<<shift) | uint32(v)<<shift
		if atomic.CompareAndSwapUint32(w, old, val) {
			return
		}
	}
}

// headLen returns the number of bytes before the first word-aligned address
// at or after p, capped at n.
func headLen(p unsafe.Pointer, n int) int {
	h := int(-uintptr(p) & hostarch.WordMask)
	return min(h, n)
}

// loadVolatile copies len(dst) bytes from volatile memory at src into dst.
func loadVolatile(dst []byte, src unsafe.Pointer) {
	i := 0
	for h := headLen(src, len(dst)); i < h; i++ {
		dst[i] = loadByte(unsafe.Add(src, i))
	}
	for ; len(dst)-i >= hostarch.WordSize; i += hostarch.WordSize {
		hostarch.ByteOrder.PutUint64(dst[i:], atomic.LoadUint64((*uint64)(unsafe.Add(src, i))))
	}
	for ; i < len(dst); i++ {
		dst[i] = loadByte(unsafe.Add(src, i))
	}
}

// storeVolatile copies src into volatile memory at dst.
func storeVolatile(dst unsafe.Pointer, src []byte) {
	i := 0
	for h := headLen(dst, len(src)); i < h; i++ {
		storeByte(unsafe.Add(dst, i), src[i])
	}
	for ; len(src)-i >= hostarch.WordSize; i += hostarch.WordSize {
		atomic.StoreUint64((*uint64)(unsafe.Add(dst, i)), hostarch.ByteOrder.Uint64(src[i:]))
	}
	for ; i < len(src); i++ {
		storeByte(unsafe.Add(dst, i), src[i])
	}
}

// zeroVolatile sets n bytes of volatile memory at dst to 0.
func zeroVolatile(dst unsafe.Pointer, n int) {
	i := 0
	for h := headLen(dst, n); i < h; i++ {
		storeByte(unsafe.Add(dst, i), 0)
	}
	for ; n-i >= hostarch.WordSize; i += hostarch.WordSize {
		atomic.StoreUint64((*uint64)(unsafe.Add(dst, i)), 0)
	}
	for ; i < n; i++ {
		storeByte(unsafe.Add(dst, i), 0)
	}
}
