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

import "testing"

func testPage(pfn uint64, rowSize uint64) Page {
	phys := uintptr(pfn) * uintptr(pageSize)
	return Page{
		VirtAddr: uintptr(pfn) * uintptr(pageSize), // arbitrary stand-in, unused by grouping
		Pfn:      pfn,
		bank:     BankIndex(FamilyHaswell, phys, 2),
		column:   ColumnIndex(phys),
		row:      RowIndex(phys, rowSize),
	}
}

// Four pages with PFNs 0x1000, 0x1001, 0x1020, 0x1021 at row size
// 0x20000 fall into rows 0x80 (first two) and 0x81 (last two).
func TestGroupPagesByRowScenario(t *testing.T) {
	const rowSize = 0x20000
	pages := []Page{
		testPage(0x1000, rowSize),
		testPage(0x1001, rowSize),
		testPage(0x1020, rowSize),
		testPage(0x1021, rowSize),
	}

	rows := groupPagesByRow(pages)

	if uint64(len(rows)) <= 0x81 {
		t.Fatalf("expected rows up to index 0x81, got %d rows", len(rows))
	}
	if got := len(rows[0x80].Pages); got != 2 {
		t.Errorf("row 0x80 has %d pages, want 2", got)
	}
	if got := len(rows[0x81].Pages); got != 2 {
		t.Errorf("row 0x81 has %d pages, want 2", got)
	}
	for _, p := range rows[0x80].Pages {
		if p.Pfn != 0x1000 && p.Pfn != 0x1001 {
			t.Errorf("unexpected pfn 0x%x in row 0x80", p.Pfn)
		}
	}
	for _, p := range rows[0x81].Pages {
		if p.Pfn != 0x1020 && p.Pfn != 0x1021 {
			t.Errorf("unexpected pfn 0x%x in row 0x81", p.Pfn)
		}
	}
}

func TestGroupPagesByRowEveryPageRoundTripsPresumedIndex(t *testing.T) {
	const rowSize = 0x20000
	pages := []Page{
		testPage(0x1000, rowSize),
		testPage(0x1020, rowSize),
		testPage(0x3000, rowSize),
	}
	rows := groupPagesByRow(pages)
	for _, row := range rows {
		for _, p := range row.Pages {
			if (p.Pfn*pageSizeU)/rowSize != row.PresumedIndex {
				t.Errorf("page pfn=0x%x in row %d, want row %d", p.Pfn, row.PresumedIndex, (p.Pfn*pageSizeU)/rowSize)
			}
		}
	}
}

func TestRowCompleteAndSameBankPair(t *testing.T) {
	row := &Row{Pages: []Page{
		{Pfn: 1, bank: 0},
		{Pfn: 3, bank: 0},
		{Pfn: 2, bank: 1},
	}}
	if row.Complete(4 * pageSizeU) {
		t.Error("row with 3 pages should not be complete for a row size needing 4 pages")
	}
	if !row.Complete(3 * pageSizeU) {
		t.Error("row with 3 pages should be complete for a row size needing 3 pages")
	}
	first, second, ok := row.SameBankPair(0)
	if !ok {
		t.Fatal("expected a same-bank pair in bank 0")
	}
	if first.Pfn != 1 || second.Pfn != 3 {
		t.Errorf("SameBankPair = (%d, %d), want (1, 3) PFN-ascending", first.Pfn, second.Pfn)
	}
	if _, _, ok := row.SameBankPair(1); ok {
		t.Error("bank 1 only has one page, expected no pair")
	}
}
