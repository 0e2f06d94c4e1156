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

func TestFilterByRiskRejectsRiskBitAndBelowThreshold(t *testing.T) {
	cfg := SelectConfig{RiskBit: 9, TargetBit: 8, TargetBitThreshold: 3}

	safe := Record{VictimPFN: 1}
	safe.Bits[8] = 5

	risky := Record{VictimPFN: 2}
	risky.Bits[8] = 5
	risky.Bits[9] = 1

	belowThreshold := Record{VictimPFN: 3}
	belowThreshold.Bits[8] = 2

	out := filterByRisk([]Record{safe, risky, belowThreshold}, cfg)

	if len(out) != 1 || out[0].VictimPFN != 1 {
		t.Fatalf("filterByRisk = %+v, want only VictimPFN 1", out)
	}
}

// TestLocateRecordRequiresRowAdjacentNeighbours exercises locateRecord
// against a small synthetic row layout: a record only locates when its
// victim's row sits strictly between rows holding both above and below
// PFNs.
func TestLocateRecordRequiresRowAdjacentNeighbours(t *testing.T) {
	const rowSize = 0x20000
	rows := []*Row{
		{PresumedIndex: 0, Pages: []Page{testPage(0x1000, rowSize), testPage(0x1001, rowSize)}},
		{PresumedIndex: 1, Pages: []Page{testPage(0x1020, rowSize)}},
		{PresumedIndex: 2, Pages: []Page{testPage(0x1040, rowSize), testPage(0x1041, rowSize)}},
	}
	byPfn := indexRowsByPfn(rows)

	t.Run("locates a valid triple", func(t *testing.T) {
		rec := Record{VictimPFN: 0x1020, AbovePFN: [2]uint64{0x1000, 0x1001}, BelowPFN: [2]uint64{0x1040, 0x1041}}
		cand, ok := locateRecord(rows, byPfn, rec)
		if !ok {
			t.Fatalf("locateRecord did not locate a valid triple")
		}
		if cand.Victim.Pfn != 0x1020 {
			t.Fatalf("located wrong victim: %+v", cand)
		}
	})

	t.Run("rejects a victim on the boundary row", func(t *testing.T) {
		rec := Record{VictimPFN: 0x1000, AbovePFN: [2]uint64{0x1000, 0x1001}, BelowPFN: [2]uint64{0x1040, 0x1041}}
		if _, ok := locateRecord(rows, byPfn, rec); ok {
			t.Fatalf("locateRecord should reject a victim with no row above it")
		}
	})

	t.Run("rejects an unresolved PFN", func(t *testing.T) {
		rec := Record{VictimPFN: 0x1020, AbovePFN: [2]uint64{0x1000, 0x1001}, BelowPFN: [2]uint64{0x1040, 0x9999}}
		if _, ok := locateRecord(rows, byPfn, rec); ok {
			t.Fatalf("locateRecord should reject a record with a PFN missing from the layout")
		}
	})
}
