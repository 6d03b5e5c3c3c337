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

package hostarch

import (
	"math"
	"os"
	"testing"
)

func TestPageSizeMatchesRuntime(t *testing.T) {
	if got, want := PageSize, os.Getpagesize(); got != want {
		t.Errorf("PageSize: got %d, wanted %d", got, want)
	}
}

func TestIsPageAligned(t *testing.T) {
	page := uint64(PageSize)
	for _, test := range []struct {
		name    string
		v       uint64
		aligned bool
	}{
		{name: "zero", v: 0, aligned: true},
		{name: "one", v: 1},
		{name: "page", v: page, aligned: true},
		{name: "page plus one", v: page + 1},
		{name: "max", v: math.MaxUint64},
		{name: "top page", v: math.MaxUint64 &^ (page - 1), aligned: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := IsPageAligned(test.v); got != test.aligned {
				t.Errorf("IsPageAligned(%#x): got %t, wanted %t", test.v, got, test.aligned)
			}
		})
	}
}
