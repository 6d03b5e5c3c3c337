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

// Package safemem provides primitives for accessing memory that may be
// concurrently mutated outside the Go memory model, such as guest memory
// shared with a running virtual CPU.
package safemem

import (
	"fmt"
	"unsafe"
)

// A Block is a range of contiguous bytes, similar to []byte but with the
// following differences:
//
//   - The memory represented by a Block may require the use of volatile
//     accesses, because it may be mutated by something other than the Go
//     program at any time. Such Blocks are never converted to a []byte.
//
//   - Blocks are immutable and may be copied by value. The zero value of Block
//     represents an empty range.
type Block struct {
	start    unsafe.Pointer
	length   int
	volatile bool
}

// BlockFromSafeSlice returns a Block equivalent to slice, which is safe to
// access with ordinary loads and stores.
func BlockFromSafeSlice(slice []byte) Block {
	return blockFromSlice(slice, false)
}

// BlockFromVolatileSlice returns a Block equivalent to slice, which may be
// mutated concurrently by something other than the Go program.
func BlockFromVolatileSlice(slice []byte) Block {
	return blockFromSlice(slice, true)
}

func blockFromSlice(slice []byte, volatile bool) Block {
	if len(slice) == 0 {
		return Block{}
	}
	return Block{
		start:    unsafe.Pointer(&slice[0]),
		length:   len(slice),
		volatile: volatile,
	}
}

// BlockFromSafePointer returns a Block equivalent to [ptr, ptr+length), which
// is safe to access with ordinary loads and stores.
//
// Preconditions: ptr+length does not overflow.
func BlockFromSafePointer(ptr unsafe.Pointer, length int) Block {
	return blockFromPointer(ptr, length, false)
}

// BlockFromVolatilePointer returns a Block equivalent to [ptr, ptr+length),
// which may be mutated concurrently by something other than the Go program.
//
// Preconditions: ptr+length does not overflow. Every aligned 32-bit word that
// overlaps [ptr, ptr+length) is addressable.
func BlockFromVolatilePointer(ptr unsafe.Pointer, length int) Block {
	return blockFromPointer(ptr, length, true)
}

func blockFromPointer(ptr unsafe.Pointer, length int, volatile bool) Block {
	if length < 0 {
		panic(fmt.Sprintf("invalid negative length: %d", length))
	}
	if ptr == nil && length != 0 {
		panic(fmt.Sprintf("nil pointer with non-zero length: %d", length))
	}
	if length == 0 {
		return Block{}
	}
	return Block{
		start:    ptr,
		length:   length,
		volatile: volatile,
	}
}

// DropFirst returns a Block equivalent to b, but with the first n bytes
// omitted. It is analogous to the [n:] operation on a slice, except that if n
// > b.Len(), DropFirst returns an empty Block instead of panicking.
//
// Preconditions: n >= 0.
func (b Block) DropFirst(n int) Block {
	if n < 0 {
		panic(fmt.Sprintf("invalid n: %d", n))
	}
	return b.DropFirst64(uint64(n))
}

// DropFirst64 is equivalent to DropFirst but takes a uint64.
func (b Block) DropFirst64(n uint64) Block {
	if n >= uint64(b.length) {
		return Block{}
	}
	return Block{
		start:    unsafe.Add(b.start, n),
		length:   b.length - int(n),
		volatile: b.volatile,
	}
}

// TakeFirst returns a Block equivalent to the first n bytes of b. It is
// analogous to the [:n] operation on a slice, except that if n > b.Len(),
// TakeFirst returns a copy of b instead of panicking.
//
// Preconditions: n >= 0.
func (b Block) TakeFirst(n int) Block {
	if n < 0 {
		panic(fmt.Sprintf("invalid n: %d", n))
	}
	return b.TakeFirst64(uint64(n))
}

// TakeFirst64 is equivalent to TakeFirst but takes a uint64.
func (b Block) TakeFirst64(n uint64) Block {
	if n == 0 {
		return Block{}
	}
	if n < uint64(b.length) {
		b.length = int(n)
	}
	return b
}

// ToSlice returns a []byte equivalent to b.
//
// Preconditions: !b.Volatile().
func (b Block) ToSlice() []byte {
	if b.volatile {
		panic("ToSlice called on a volatile Block")
	}
	if b.length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.start), b.length)
}

// Addr returns b's start address as a uintptr. It returns uintptr instead of
// unsafe.Pointer so that code using safemem cannot obtain unsafe.Pointers
// without importing the unsafe package explicitly.
//
// Note that a uintptr is not recognized as a pointer by the garbage collector,
// such that if there are no uses of b after a call to b.Addr() and the address
// is to Go-managed memory, the returned uintptr does not prevent garbage
// collection of the pointee.
func (b Block) Addr() uintptr {
	return uintptr(b.start)
}

// Len returns b's length in bytes.
func (b Block) Len() int {
	return b.length
}

// Volatile returns true if b must be accessed with volatile loads and stores.
func (b Block) Volatile() bool {
	return b.volatile
}

// String implements fmt.Stringer.String.
func (b Block) String() string {
	if uintptr(b.start) == 0 && b.length == 0 {
		return "<nil>"
	}
	var suffix string
	if b.volatile {
		suffix = "*"
	}
	return fmt.Sprintf("[%#x-%#x)%s", uintptr(b.start), uintptr(b.start)+uintptr(b.length), suffix)
}

// Copy copies src.Len() or dst.Len() bytes, whichever is less, from src
// to dst and returns the number of bytes copied.
//
// If src and dst overlap, the data stored in dst is unspecified.
func Copy(dst, src Block) (int, error) {
	n := dst.length
	if n > src.length {
		n = src.length
	}
	if n == 0 {
		return 0, nil
	}

	switch {
	case !dst.volatile && !src.volatile:
		copy(unsafe.Slice((*byte)(dst.start), n), unsafe.Slice((*byte)(src.start), n))
	case dst.volatile && !src.volatile:
		storeVolatile(dst.start, unsafe.Slice((*byte)(src.start), n))
	case !dst.volatile && src.volatile:
		loadVolatile(unsafe.Slice((*byte)(dst.start), n), src.start)
	default:
		var buf [bounceSize]byte
		for done := 0; done < n; {
			chunk := buf[:min(n-done, bounceSize)]
			loadVolatile(chunk, unsafe.Add(src.start, done))
			storeVolatile(unsafe.Add(dst.start, done), chunk)
			done += len(chunk)
		}
	}
	return n, nil
}

// Zero sets all bytes in dst to 0 and returns the number of bytes zeroed.
func Zero(dst Block) (int, error) {
	if dst.length == 0 {
		return 0, nil
	}
	if !dst.volatile {
		clear(unsafe.Slice((*byte)(dst.start), dst.length))
		return dst.length, nil
	}
	zeroVolatile(dst.start, dst.length)
	return dst.length, nil
}

// bounceSize is the size of the on-stack buffer used to copy between two
// volatile Blocks.
const bounceSize = 256
