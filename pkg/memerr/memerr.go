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

// Package memerr holds the error taxonomy for guest memory.
//
// Every error returned by the guest memory packages can be classified with
// KindOf. Sentinel errors are wrapped with fmt.Errorf("%w") at the failing
// call site, so errors.Is against the sentinels below also works.
package memerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies an error.
type Kind int

const (
	// Construction errors are returned when a region set or mapping cannot
	// be built: overlapping or duplicate ranges, zero-length ranges, or a
	// failing host mapping call during construction.
	Construction Kind = iota

	// OutOfBounds errors are returned when an access names an address that
	// no region contains, or extends past the end of the containing region.
	// Guest address arithmetic that wraps (ErrAddrOverflow) is OutOfBounds
	// too.
	OutOfBounds

	// ShortIO errors are returned when an exact-length stream transfer could
	// not move the full requested length.
	ShortIO

	// OS errors carry a raw host errno from a mapping or unmapping call.
	OS
)

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	switch k {
	case Construction:
		return "Construction"
	case OutOfBounds:
		return "OutOfBounds"
	case ShortIO:
		return "ShortIO"
	case OS:
		return "OS"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a guest memory error with a fixed Kind.
type Error struct {
	kind    Kind
	message string
}

// New creates a new *Error.
func New(kind Kind, message string) *Error {
	return &Error{
		kind:    kind,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Kind returns the error's Kind.
func (e *Error) Kind() Kind { return e.kind }

var (
	// ErrOverlap is returned when two regions overlap or share a base.
	ErrOverlap = New(Construction, "overlapping memory regions")

	// ErrNoRegions is returned when a region set is built from no regions.
	ErrNoRegions = New(Construction, "no memory regions")

	// ErrZeroLength is returned for a region or mapping of length 0.
	ErrZeroLength = New(Construction, "zero-length memory region")

	// ErrUnaligned is returned when a file-backed mapping is requested at an
	// offset or with a size that is not page aligned.
	ErrUnaligned = New(Construction, "memory region not page aligned")

	// ErrOverflow is returned when a region or mapping end, or the total size
	// of a region set, would wrap.
	ErrOverflow = New(Construction, "memory region size overflow")

	// ErrAddrOverflow is returned when guest address arithmetic would wrap.
	// A wrapped address names no memory, so it is an OutOfBounds error.
	ErrAddrOverflow = New(OutOfBounds, "guest address overflow")

	// ErrOutOfBounds is returned for accesses outside of a single region.
	ErrOutOfBounds = New(OutOfBounds, "access out of bounds")

	// ErrShortIO is returned when an exact stream transfer comes up short.
	ErrShortIO = New(ShortIO, "short stream transfer")
)

// OSError is a host errno returned by a mapping related system call.
type OSError struct {
	// Op names the failing call, e.g. "mmap".
	Op string

	// Errno is the host error code, surfaced verbatim.
	Errno unix.Errno
}

// Error implements error.Error.
func (e *OSError) Error() string {
	return fmt.Sprintf("%s: %v (errno %d)", e.Op, e.Errno, int(e.Errno))
}

// Unwrap returns the underlying errno so that errors.Is(err, unix.ENOMEM)
// works.
func (e *OSError) Unwrap() error { return e.Errno }

// FromErrno captures the OS error returned by a failing call named op.
//
// nil is returned unchanged. A unix.Errno anywhere in err's chain is wrapped
// in an *OSError; other errors are returned as-is.
func FromErrno(op string, err error) error {
	if err == nil {
		return nil
	}
	var osErr *OSError
	if errors.As(err, &osErr) {
		return err
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		if errno == 0 {
			return nil
		}
		return &OSError{Op: op, Errno: errno}
	}
	return err
}

// ShortIOError is returned when an exact stream transfer moved fewer bytes
// than requested. It matches ErrShortIO under errors.Is.
type ShortIOError struct {
	// Moved is the number of bytes transferred before the failure.
	Moved uint64

	// Want is the number of bytes requested.
	Want uint64

	// Err is the stream error, or io.ErrUnexpectedEOF if the stream simply
	// ended early.
	Err error
}

// Error implements error.Error.
func (e *ShortIOError) Error() string {
	return fmt.Sprintf("%v: moved %d of %d bytes: %v", ErrShortIO, e.Moved, e.Want, e.Err)
}

// Unwrap returns the stream error.
func (e *ShortIOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrShortIO.
func (e *ShortIOError) Is(target error) bool { return target == ErrShortIO }

// constructionError marks an arbitrary cause as a construction failure.
type constructionError struct {
	msg   string
	cause error
}

func (e *constructionError) Error() string {
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *constructionError) Unwrap() error { return e.cause }

// Constructionf returns an error of Kind Construction that wraps cause. It is
// used when a host call fails while a region set is being built.
func Constructionf(cause error, format string, v ...any) error {
	return &constructionError{
		msg:   fmt.Sprintf(format, v...),
		cause: cause,
	}
}

// KindOf returns the Kind of the outermost classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.kind, true
		case *constructionError:
			return Construction, true
		case *ShortIOError:
			return ShortIO, true
		case *OSError:
			return OS, true
		case unix.Errno:
			return OS, true
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}

// Errno returns the host errno in err's chain, if any.
func Errno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
