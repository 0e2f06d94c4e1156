//go:build amd64

// Copyright 2024 rhprobe authors.
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

// The handful of x86 instructions a hammer kernel needs, exposed as Go
// assembly stubs in the same posture golang.org/x/sys/cpu uses for
// CPUID: no cgo, no external assembler.

package rhprobe

import "unsafe"

//go:noescape
func clflush(addr uintptr)

//go:noescape
func lfence()

//go:noescape
func sfence()

//go:noescape
func mfence()

// FlushCacheLine evicts the cache line containing addr from every
// level of the cache hierarchy, forcing the next access to fetch from
// DRAM. This is the mechanism that turns repeated reads into repeated
// row activations instead of cache hits.
func FlushCacheLine(addr uintptr) {
	clflush(addr)
}

// FlushBytes flushes every cache line overlapping [p, p+n).
func FlushBytes(p unsafe.Pointer, n uintptr) {
	const lineSize = 64
	start := uintptr(p) &^ (lineSize - 1)
	end := uintptr(p) + n
	for a := start; a < end; a += lineSize {
		clflush(a)
	}
}

// LoadFence orders prior loads before subsequent loads (LFENCE).
func LoadFence() { lfence() }

// StoreFence orders prior stores before subsequent stores (SFENCE).
func StoreFence() { sfence() }

// FullFence orders all prior memory operations before subsequent ones
// (MFENCE). RowPress uses this after flushing each activation's reads,
// before the next activation; Rowhammer uses no fence.
func FullFence() { mfence() }
