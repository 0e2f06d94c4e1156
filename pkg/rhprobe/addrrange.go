// Copyright 2021 Intel Corporation. All Rights Reserved.
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

package rhprobe

// AddrRange describes a page-granular virtual address span: the dummy
// block the attack harness reserves, or the flanking halves it unmaps
// around the victim pages.
type AddrRange struct {
	addr   uintptr
	length uint64 // number of pages
}

// NewAddrRange builds an AddrRange spanning [startAddr, stopAddr).
func NewAddrRange(startAddr, stopAddr uintptr) AddrRange {
	if stopAddr < startAddr {
		startAddr, stopAddr = stopAddr, startAddr
	}
	return AddrRange{addr: startAddr, length: uint64(stopAddr-startAddr) / pageSizeU}
}

// Addr returns the range's start address.
func (ar AddrRange) Addr() uintptr { return ar.addr }

// Length returns the range's length in pages.
func (ar AddrRange) Length() uint64 { return ar.length }

// EndAddr returns the address one byte past the end of the range.
func (ar AddrRange) EndAddr() uintptr {
	return ar.addr + uintptr(ar.length*pageSizeU)
}

// PageAddrs returns the start address of every page in the range, in
// ascending order.
func (ar AddrRange) PageAddrs() []uintptr {
	addrs := make([]uintptr, ar.length)
	for i := range addrs {
		addrs[i] = ar.addr + uintptr(uint64(i)*pageSizeU)
	}
	return addrs
}

// FirstHalf returns the first half of the range, rounded down to a page
// boundary.
func (ar AddrRange) FirstHalf() AddrRange {
	half := ar.length / 2
	return AddrRange{addr: ar.addr, length: half}
}

// SecondHalf returns the second half of the range.
func (ar AddrRange) SecondHalf() AddrRange {
	half := ar.length / 2
	return AddrRange{addr: ar.addr + uintptr(half*pageSizeU), length: ar.length - half}
}
