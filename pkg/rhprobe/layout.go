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

// Row is a set of pages whose physical addresses share a presumed DRAM
// row index, possibly spanning several banks; the profiler partitions
// a Row's pages by bank when it needs one representative per bank.
type Row struct {
	PresumedIndex uint64
	Pages         []Page
}

// LayoutConfig parameterizes how CollectPagesByRow reconstructs the
// DRAM address model from a mapping's pages.
type LayoutConfig struct {
	Family  Family
	Dimms   int
	RowSize uint64
}

// groupPagesByRow buckets pages by their presumed row index, extending
// the returned sequence with empty Rows so that a Row's position in
// the slice equals its presumed row index, exactly as
// collect_pages_by_row's sequence-position invariant requires. Pages
// whose PFN lookup failed upstream are never passed in.
func groupPagesByRow(pages []Page) []*Row {
	var rows []*Row
	for _, p := range pages {
		idx := p.Row()
		for uint64(len(rows)) <= idx {
			rows = append(rows, &Row{PresumedIndex: uint64(len(rows))})
		}
		rows[idx].Pages = append(rows[idx].Pages, p)
	}
	return rows
}

// CollectPagesByRow walks every page of m, resolves each one's PFN and
// presumed row index, and groups them into Rows whose slice position
// equals their row index. Pages whose PFN lookup fails are silently
// dropped and not counted themselves; the row they would have joined
// ends up short and is tallied once, like every short row, as an
// IncompleteRow.
func CollectPagesByRow(m *Mapping, cfg LayoutConfig, stats *RunStats) ([]*Row, error) {
	r, err := openPagemap()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	pages := make([]Page, 0, len(m.PageAddrs()))
	for _, addr := range m.PageAddrs() {
		page, err := newPage(r, addr, cfg.Family, cfg.Dimms, cfg.RowSize)
		if err != nil {
			continue
		}
		pages = append(pages, page)
	}

	rows := groupPagesByRow(pages)
	if stats != nil {
		pagesPerRow := cfg.RowSize / pageSizeU
		for _, row := range rows {
			if uint64(len(row.Pages)) < pagesPerRow {
				stats.bumpIncompleteRow()
			}
		}
	}
	return rows, nil
}

// Len returns the number of pages actually found for this row.
func (r *Row) Len() int { return len(r.Pages) }

// Complete reports whether the row has as many pages as a full DRAM
// row of size rowSize would contain.
func (r *Row) Complete(rowSize uint64) bool {
	return uint64(len(r.Pages)) >= rowSize/pageSizeU
}

// SameBankPair returns the two lowest-PFN pages of r sharing bank,
// sorted PFN-ascending. ok is false if fewer than two such pages
// exist, the PatternMismatch condition.
func (r *Row) SameBankPair(bank uint8) (first, second Page, ok bool) {
	var have [2]Page
	n := 0
	for _, p := range r.Pages {
		if p.Bank() != bank {
			continue
		}
		if n == 0 {
			have[0] = p
			n = 1
			continue
		}
		if n == 1 {
			have[1] = p
			n = 2
			if have[1].Pfn < have[0].Pfn {
				have[0], have[1] = have[1], have[0]
			}
			continue
		}
		// already have two candidates; keep the lowest two by PFN.
		if p.Pfn < have[0].Pfn {
			have[1] = have[0]
			have[0] = p
		} else if p.Pfn < have[1].Pfn {
			have[1] = p
		}
	}
	if n < 2 {
		return Page{}, Page{}, false
	}
	if have[0].Pfn > have[1].Pfn {
		have[0], have[1] = have[1], have[0]
	}
	return have[0], have[1], true
}
