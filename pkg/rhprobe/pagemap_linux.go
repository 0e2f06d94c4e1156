//go:build linux

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

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

const pagemapEntrySize = 8

// pagemapReader keeps /proc/self/pagemap open across many PfnOf calls
// instead of reopening it per lookup; a profiling run queries millions
// of addresses.
type pagemapReader struct {
	f *os.File
}

func openPagemap() (*pagemapReader, error) {
	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return nil, errors.Wrap(ErrInsufficientPrivilege, err.Error())
	}
	return &pagemapReader{f: f}, nil
}

func (r *pagemapReader) Close() error {
	return r.f.Close()
}

// pfnOf returns the physical frame number backing addr, resolved
// through this process's page tables via /proc/self/pagemap. The entry
// layout is documented in fs/proc/task_mmu.c: bit 63 is the present
// flag, bits 0-54 are the PFN when present.
func (r *pagemapReader) pfnOf(addr uintptr) (uint64, error) {
	vpn := uint64(addr) / pageSizeU
	var buf [pagemapEntrySize]byte
	if _, err := r.f.ReadAt(buf[:], int64(vpn*pagemapEntrySize)); err != nil {
		return 0, errors.Wrap(ErrPfnUnavailable, err.Error())
	}
	entry := binary.LittleEndian.Uint64(buf[:])
	if entry&pmPresent == 0 {
		return 0, errors.Wrap(ErrPfnUnavailable, "page not present")
	}
	return entry & pmPFNMask, nil
}

// PfnOf is a convenience wrapper around a one-shot pagemapReader. Callers
// resolving many addresses (the profiler, the layout builder) should
// open a pagemapReader directly instead.
func PfnOf(addr uintptr) (uint64, error) {
	r, err := openPagemap()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.pfnOf(addr)
}
