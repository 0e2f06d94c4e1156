//go:build linux && amd64

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
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PhysicalMemorySize returns the total physical RAM in bytes, via
// sysinfo(2).
func PhysicalMemorySize() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, errors.Wrap(err, "sysinfo")
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// Mapping owns a reserved, populated, RAM-locked anonymous virtual
// address range. It releases its range on every exit path: Close is
// idempotent and safe to call from a defer after a partial UnmapRange.
type Mapping struct {
	base   []byte
	addr   uintptr
	length uint64 // bytes of the original reservation
	closed bool
}

// AllocatePopulatedMapping reserves fraction * PhysicalMemorySize bytes
// of anonymous memory, forces population at creation (MAP_POPULATE),
// and locks the mapping into RAM so the kernel cannot swap or migrate
// it mid-experiment. Profiling quality degrades silently if a caller
// ignores the ErrInsufficientPrivilege returned when mlock is denied.
func AllocatePopulatedMapping(fraction float64) (*Mapping, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Errorf("fraction must be in (0,1], got %v", fraction)
	}
	total, err := PhysicalMemorySize()
	if err != nil {
		return nil, err
	}
	size := uint64(fraction * float64(total))
	size -= size % pageSizeU
	if size == 0 {
		return nil, errors.Wrap(ErrMappingFailure, "computed mapping size is zero")
	}

	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, errors.Wrap(ErrMappingFailure, err.Error())
	}

	if err := unix.Mlock(b); err != nil {
		_ = unix.Munmap(b)
		return nil, errors.Wrap(ErrInsufficientPrivilege, "mlock: "+err.Error())
	}

	return &Mapping{
		base:   b,
		addr:   uintptr(unsafe.Pointer(&b[0])),
		length: size,
	}, nil
}

// Base returns the mapping's start address.
func (m *Mapping) Base() uintptr { return m.addr }

// Len returns the length in bytes of the original reservation.
// UnmapRange does not shrink it; Close re-unmapping a punched hole is
// harmless.
func (m *Mapping) Len() uint64 { return m.length }

// PageAddrs returns the start address of every page of the original
// reservation, including any later unmapped by UnmapRange.
func (m *Mapping) PageAddrs() []uintptr {
	n := m.length / pageSizeU
	addrs := make([]uintptr, 0, n)
	for i := uint64(0); i < n; i++ {
		addrs = append(addrs, m.addr+uintptr(i*pageSizeU))
	}
	return addrs
}

// Range returns the mapping's full extent as an AddrRange.
func (m *Mapping) Range() AddrRange {
	return AddrRange{addr: m.addr, length: m.length / pageSizeU}
}

// FirstHalf returns the first half of the mapping's original extent,
// the piece the attack harness unmaps before the victim pages.
func (m *Mapping) FirstHalf() AddrRange { return m.Range().FirstHalf() }

// SecondHalf returns the second half of the mapping's original extent,
// the piece the attack harness unmaps after the victim pages.
func (m *Mapping) SecondHalf() AddrRange { return m.Range().SecondHalf() }

// UnmapRange unmaps a sub-range of the mapping, used by the attack
// harness to punch a precisely ordered hole in the allocator. This is a
// deliberate, scoped violation of normal single-owner mapping hygiene:
// once unmapped, the underlying frames become eligible for reuse by any
// process, which is the exploit's mechanism.
func (m *Mapping) UnmapRange(ar AddrRange) error {
	length := ar.length * pageSizeU
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, ar.addr, uintptr(length), 0); errno != 0 {
		return errors.Wrap(errno, "munmap")
	}
	return nil
}

// UnmapPage unmaps a single page.
func UnmapPage(addr uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(pageSize), 0); errno != 0 {
		return errors.Wrap(errno, "munmap")
	}
	return nil
}

// Close unmaps the mapping's original extent; re-unmapping pages a
// prior UnmapRange already removed is a no-op. Safe to call more than
// once.
func (m *Mapping) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.length == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, m.addr, uintptr(m.length), 0)
	if errno != 0 {
		return errors.Wrap(errno, "munmap")
	}
	return nil
}

// PinToCore pins the calling OS thread to a single CPU core. Callers
// running on a goroutine that must stay pinned should call
// runtime.LockOSThread first; PinToCore does so itself and returns the
// thread locked.
func PinToCore(core int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "sched_setaffinity(core=%d)", core)
	}
	return nil
}
