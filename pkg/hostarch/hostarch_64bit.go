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

//go:build arm64 || amd64
// +build arm64 amd64

package hostarch

import "encoding/binary"

// ByteOrder is the native byte order (little endian).
var ByteOrder = binary.LittleEndian

const (
	// WordSize is the size of the widest word that can be loaded and stored
	// atomically.
	WordSize = 8

	// WordMask is WordSize-1.
	WordMask = WordSize - 1
)
