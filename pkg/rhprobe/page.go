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

// Page is a single 4 KiB page inside a reserved Mapping, resolved down
// to its physical frame number and DRAM coordinates.
type Page struct {
	VirtAddr uintptr
	Pfn      uint64

	bank   uint8
	column uint64
	row    uint64

	// meas is created on the first observed flip and shared by every
	// copy of the Page taken after that; copies taken earlier keep a
	// nil record. The PFN is stable for the mapping's lifetime, so the
	// record never needs invalidating.
	meas *Measurement
}

// newPage resolves virtAddr's PFN through r and derives its DRAM bank,
// column, and presumed row index under family/dimms/rowSize.
func newPage(r *pagemapReader, virtAddr uintptr, family Family, dimms int, rowSize uint64) (Page, error) {
	pfn, err := r.pfnOf(virtAddr)
	if err != nil {
		return Page{}, err
	}
	phys := uintptr(pfn) * uintptr(pageSize)
	return Page{
		VirtAddr: virtAddr,
		Pfn:      pfn,
		bank:     BankIndex(family, phys, dimms),
		column:   ColumnIndex(phys),
		row:      RowIndex(phys, rowSize),
	}, nil
}

// PhysAddr reconstructs the physical address of the page's first byte.
func (p Page) PhysAddr() uintptr { return uintptr(p.Pfn) * uintptr(pageSize) }

// Bank returns the page's DRAM bank index.
func (p Page) Bank() uint8 { return p.bank }

// Column returns the page's DRAM column index.
func (p Page) Column() uint64 { return p.column }

// Row returns the page's presumed DRAM row index.
func (p Page) Row() uint64 { return p.row }

// SameBank reports whether p and other decode to the same bank, the
// necessary (but not sufficient) condition for them to be candidate
// aggressor/victim row neighbours.
func (p Page) SameBank(other Page) bool { return p.bank == other.bank }

// Measurement returns the page's cumulative flip record, or nil if no
// flip has been observed yet.
func (p *Page) Measurement() *Measurement { return p.meas }

// RecordFlips merges one scan's flips into the page's measurement
// record, creating the record (with its companion PFNs) on the first
// observation, and returns it.
func (p *Page) RecordFlips(above, below [2]uint64, flips []Flip) *Measurement {
	if p.meas == nil {
		p.meas = newMeasurement(above, below)
	}
	p.meas.Merge(flips)
	return p.meas
}
