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

// Package plaindata marks types whose in-memory representation can be copied
// to and from guest memory byte for byte.
//
// A plain data type has a fixed size, contains no pointers or references,
// has no padding, and every bit pattern of its size is a valid value. Such a
// value can be reinterpreted as a byte range without any per-type encode or
// decode code.
//
// Types opt in by implementing Data. The claim is verified once per type, the
// first time the type is used:
//
//	type header struct {
//		Magic   uint32
//		Version uint32
//	}
//
//	func (header) PlainData() {}
package plaindata

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/modern-go/reflect2"
)

// Data is implemented by plain data types. Implementing it is an assertion
// by the type's author; Check verifies it.
type Data interface {
	PlainData()
}

// LayoutError describes why a type is not plain data.
type LayoutError struct {
	// Type is the offending type.
	Type reflect.Type

	// Path locates the offending part within Type, e.g. "Hdr.Flags".
	Path string

	// Reason is a short description of the violation.
	Reason string
}

// Error implements error.Error.
func (e *LayoutError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v is not plain data: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("%v is not plain data: %s: %s", e.Type, e.Path, e.Reason)
}

// Check returns nil if t has a plain data layout: fixed-size integers,
// floats and complex numbers, and arrays and structs made only of those,
// with no padding anywhere.
//
// bool is rejected since only 0 and 1 are valid bools. int, uint and uintptr
// are rejected since their size depends on the host.
func Check(t reflect.Type) error {
	if t == nil {
		return &LayoutError{Reason: "nil type"}
	}
	return check(t, reflect2.Type2(t), "")
}

func check(root reflect.Type, t reflect2.Type, path string) error {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		at := t.(reflect2.ArrayType)
		return check(root, at.Elem(), path+"[]")
	case reflect.Struct:
		return checkStruct(root, t.(reflect2.StructType), path)
	default:
		return &LayoutError{Type: root, Path: path, Reason: fmt.Sprintf("kind %v not allowed", t.Kind())}
	}
}

func checkStruct(root reflect.Type, st reflect2.StructType, path string) error {
	var offset uintptr
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		fieldPath := field.Name()
		if path != "" {
			fieldPath = path + "." + fieldPath
		}
		if field.Offset() != offset {
			return &LayoutError{
				Type:   root,
				Path:   fieldPath,
				Reason: fmt.Sprintf("%d bytes of padding before field", field.Offset()-offset),
			}
		}
		if err := check(root, field.Type(), fieldPath); err != nil {
			return err
		}
		offset += field.Type().Type1().Size()
	}
	if size := st.Type1().Size(); offset != size {
		return &LayoutError{
			Type:   root,
			Path:   path,
			Reason: fmt.Sprintf("%d bytes of trailing padding", size-offset),
		}
	}
	return nil
}

// checked caches the result of Check by type.
var checked sync.Map // reflect.Type -> error

func mustCheck[T Data]() {
	t := reflect.TypeOf((*T)(nil)).Elem() // equivalent to reflect.TypeFor[T]() (Go 1.22+)
	v, ok := checked.Load(t)
	if !ok {
		var err error
		if err = Check(t); err != nil {
			err = fmt.Errorf("invalid PlainData implementation: %w", err)
		}
		v, _ = checked.LoadOrStore(t, err)
	}
	if err, _ := v.(error); err != nil {
		panic(err)
	}
}

// Size returns the size of T in bytes.
//
// Size panics if T does not have a plain data layout.
func Size[T Data]() int {
	mustCheck[T]()
	var zero T
	return int(unsafe.Sizeof(zero))
}

// AsBytes returns the bytes backing *v. The returned slice aliases v.
//
// AsBytes panics if T does not have a plain data layout.
func AsBytes[T Data](v *T) []byte {
	n := Size[T]()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), n)
}
