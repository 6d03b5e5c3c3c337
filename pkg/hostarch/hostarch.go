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

// Package hostarch describes properties of the host architecture that guest
// memory depends on: the page size and the native byte order.
package hostarch

import (
	"fmt"

	"github.com/tklauser/go-sysconf"
	"golang.org/x/exp/constraints"
	"golang.org/x/sys/unix"
)

// PageSize is the host page size in bytes.
//
// File-backed mappings must start at a multiple of PageSize.
var PageSize = pageSize()

func pageSize() int {
	sz, err := sysconf.Sysconf(sysconf.SC_PAGESIZE)
	if err != nil || sz <= 0 {
		return unix.Getpagesize()
	}
	if sz&(sz-1) != 0 {
		panic(fmt.Sprintf("host page size %d is not a power of two", sz))
	}
	return int(sz)
}

// IsPageAligned returns true if v is a multiple of PageSize.
func IsPageAligned[T constraints.Integer](v T) bool {
	return v&T(PageSize-1) == 0
}
