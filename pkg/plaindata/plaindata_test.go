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

package plaindata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type smallRecord struct {
	A uint32
	B uint32
}

func (smallRecord) PlainData() {}

type bigRecord struct {
	Elements [12]uint64
}

func (bigRecord) PlainData() {}

type nestedRecord struct {
	Hdr   smallRecord
	Words [2][2]uint16
	F     float64
}

func (nestedRecord) PlainData() {}

type paddedRecord struct {
	A uint8
	B uint32
}

func (paddedRecord) PlainData() {}

type pointerRecord struct {
	P *uint32
}

func (pointerRecord) PlainData() {}

func TestCheck(t *testing.T) {
	for _, test := range []struct {
		name    string
		typ     reflect.Type
		wantErr string
	}{
		{name: "uint64", typ: typeFor[uint64]()},
		{name: "array", typ: typeFor[[16]byte]()},
		{name: "small record", typ: typeFor[smallRecord]()},
		{name: "big record", typ: typeFor[bigRecord]()},
		{name: "nested record", typ: typeFor[nestedRecord]()},
		{name: "empty struct", typ: typeFor[struct{}]()},
		{name: "interior padding", typ: typeFor[paddedRecord](), wantErr: "B: 3 bytes of padding"},
		{name: "trailing padding", typ: typeFor[struct {
			A uint32
			B uint8
		}](), wantErr: "3 bytes of trailing padding"},
		{name: "nested padding", typ: typeFor[struct{ Inner [2]paddedRecord }](), wantErr: "Inner[].B"},
		{name: "pointer", typ: typeFor[pointerRecord](), wantErr: "P: kind ptr"},
		{name: "slice", typ: typeFor[[]byte](), wantErr: "kind slice"},
		{name: "string", typ: typeFor[struct{ S string }](), wantErr: "kind string"},
		{name: "map", typ: typeFor[map[int]int](), wantErr: "kind map"},
		{name: "interface", typ: typeFor[struct{ E any }](), wantErr: "kind interface"},
		{name: "bool", typ: typeFor[bool](), wantErr: "kind bool"},
		{name: "int", typ: typeFor[int](), wantErr: "kind int"},
		{name: "uintptr", typ: typeFor[uintptr](), wantErr: "kind uintptr"},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := Check(test.typ)
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Check(%v): got %v, wanted nil", test.typ, err)
				}
				return
			}
			var le *LayoutError
			if !errors.As(err, &le) {
				t.Fatalf("Check(%v): got %v, wanted a *LayoutError", test.typ, err)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Check(%v): got %q, wanted it to contain %q", test.typ, err, test.wantErr)
			}
		})
	}
}

func TestSize(t *testing.T) {
	if got := Size[smallRecord](); got != 8 {
		t.Errorf("Size[smallRecord](): got %d, wanted 8", got)
	}
	if got := Size[bigRecord](); got != 96 {
		t.Errorf("Size[bigRecord](): got %d, wanted 96", got)
	}
}

func TestAsBytesMatchesEncoding(t *testing.T) {
	small := smallRecord{A: 0x01020304, B: 0xa0b0c0d0}
	big := bigRecord{}
	for i := range big.Elements {
		big.Elements[i] = uint64(i) * 0x0101010101010101
	}

	for _, test := range []struct {
		name string
		got  []byte
		v    any
	}{
		{"small", AsBytes(&small), small},
		{"big", AsBytes(&big), big},
	} {
		t.Run(test.name, func(t *testing.T) {
			var want bytes.Buffer
			if err := binary.Write(&want, binary.NativeEndian, test.v); err != nil {
				t.Fatalf("binary.Write failed: %v", err)
			}
			if !bytes.Equal(test.got, want.Bytes()) {
				t.Errorf("AsBytes: got %x, wanted %x", test.got, want.Bytes())
			}
		})
	}
}

func TestAsBytesAliases(t *testing.T) {
	var r smallRecord
	b := AsBytes(&r)
	binary.NativeEndian.PutUint32(b[4:], 0xdeadbeef)
	if r.B != 0xdeadbeef {
		t.Errorf("write through AsBytes not visible: got %#x", r.B)
	}
}

func TestInvalidTypePanics(t *testing.T) {
	for _, test := range []struct {
		name string
		fn   func()
	}{
		{"padded", func() { Size[paddedRecord]() }},
		{"pointer", func() { AsBytes(&pointerRecord{}) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			// Twice: the second call hits the cached result.
			for i := 0; i < 2; i++ {
				func() {
					defer func() {
						if recover() == nil {
							t.Errorf("call %d did not panic", i)
						}
					}()
					test.fn()
				}()
			}
		})
	}
}

// typeFor is equivalent to reflect.TypeFor (Go 1.22+).
func typeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
