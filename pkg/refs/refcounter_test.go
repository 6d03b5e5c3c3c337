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

package refs

import (
	"sync"
	"testing"
)

func TestDestructorRunsOnce(t *testing.T) {
	var r AtomicRefCount
	destroyed := 0
	destroy := func() { destroyed++ }

	r.IncRef()
	if got := r.ReadRefs(); got != 2 {
		t.Fatalf("ReadRefs: got %d, wanted 2", got)
	}
	r.DecRefWithDestructor(destroy)
	if destroyed != 0 {
		t.Fatalf("destructor ran with a reference outstanding")
	}
	r.DecRefWithDestructor(destroy)
	if destroyed != 1 {
		t.Fatalf("destructor ran %d times, wanted 1", destroyed)
	}
	if r.TryIncRef() {
		t.Errorf("TryIncRef succeeded on a destroyed object")
	}
}

func TestDecRefUnderflowPanics(t *testing.T) {
	var r AtomicRefCount
	r.DecRef()
	defer func() {
		if recover() == nil {
			t.Errorf("DecRef on a destroyed object did not panic")
		}
	}()
	r.DecRef()
}

func TestConcurrentRefs(t *testing.T) {
	var r AtomicRefCount
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !r.TryIncRef() {
					t.Errorf("TryIncRef failed on a live object")
					return
				}
				r.DecRef()
			}
		}()
	}
	wg.Wait()
	if got := r.ReadRefs(); got != 1 {
		t.Errorf("ReadRefs: got %d, wanted 1", got)
	}
}
