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
)

// DefaultIterations is the default number of aggressor-pair activations
// a Rowhammer run performs; 3,000,000 is enough to reliably surface
// flips on vulnerable DIMMs within a few hundred milliseconds.
const DefaultIterations = 3_000_000

// InitRow writes pattern's halfword across every page of row, used to
// fill aggressor rows before a hammer pass and to zero the target row
// before measuring flips.
func InitRow(row []Page, pattern Pattern) {
	hw := pattern.Halfword()
	for _, page := range row {
		base := (*[halfwordsPerPage]uint16)(unsafe.Pointer(page.VirtAddr))
		for i := range base {
			base[i] = hw
		}
	}
}

// Rowhammer repeatedly flushes and re-reads one address in each of two
// aggressor rows, forcing a row activation on every iteration. addr
// above and addr below must each be the address of one page per bank
// of the two rows flanking the victim row.
func Rowhammer(above, below uintptr, iters int) {
	aboveP := (*byte)(unsafe.Pointer(above))
	belowP := (*byte)(unsafe.Pointer(below))
	for i := 0; i < iters; i++ {
		FlushCacheLine(above)
		_ = *aboveP
		FlushCacheLine(below)
		_ = *belowP
	}
	runtime.KeepAlive(aboveP)
	runtime.KeepAlive(belowP)
}

// RowPress keeps each aggressor row open far longer per activation
// than Rowhammer's single read, approximating the "row press" variant
// where prolonged row-open time increases disturb per activation.
// reads is the number of sequential half-words read (and flushed) per
// activation within each row.
func RowPress(above, below uintptr, iters, aggressorActivations, reads int) {
	for i := 0; i < iters; i++ {
		LoadFence()

		for a := 0; a < aggressorActivations; a++ {
			for i := 0; i < reads; i++ {
				p := (*uint16)(unsafe.Pointer(above + uintptr(i*2)))
				_ = *p
			}
			for i := 0; i < reads; i++ {
				p := (*uint16)(unsafe.Pointer(below + uintptr(i*2)))
				_ = *p
			}
			for i := 0; i < reads; i++ {
				FlushCacheLine(above + uintptr(i*2))
				FlushCacheLine(below + uintptr(i*2))
			}

			FullFence()
		}
	}
}

// Hammer dispatches to the kernel selected by method. It is the single
// call site every higher-level driver (profiler, selector, attack
// harness) uses, keeping the AttackMethod tagged-variant dispatch in
// one place.
func Hammer(method AttackMethod, above, below uintptr, iters int) error {
	if runtime.GOARCH != "amd64" {
		return ErrUnsupportedArch
	}
	switch method {
	case AttackMethodRowHammer:
		Rowhammer(above, below, iters)
	case AttackMethodRowPress:
		RowPress(above, below, iters, 1, halfwordsPerPage)
	default:
		return errInvalidAttackMethod(method.String())
	}
	return nil
}

// PagesByBank groups row's pages by their bank index, the precondition
// for hammering exactly one representative page per bank in each of
// the two flanking rows.
func PagesByBank(row []Page) map[uint8][]Page {
	out := make(map[uint8][]Page)
	for _, p := range row {
		out[p.Bank()] = append(out[p.Bank()], p)
	}
	return out
}
