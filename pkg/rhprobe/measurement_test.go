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
	"reflect"
	"testing"
)

func TestMeasurementMergeIsMonotonicAndDedupsOffsets(t *testing.T) {
	m := newMeasurement([2]uint64{1, 2}, [2]uint64{3, 4})

	m.Merge([]Flip{{Halfword: 42, Bit: 8}, {Halfword: 7, Bit: 0}})
	if m.Total() != 2 {
		t.Fatalf("Total after first merge = %d, want 2", m.Total())
	}
	if got := m.FlippedOffsets(); !reflect.DeepEqual(got, []int{7, 42}) {
		t.Fatalf("FlippedOffsets = %v, want [7 42]", got)
	}

	// Re-observing the same flip grows the count but not the offset list.
	m.Merge([]Flip{{Halfword: 42, Bit: 8}})
	if m.Bits[8] != 2 {
		t.Errorf("Bits[8] = %d, want 2", m.Bits[8])
	}
	if m.Total() != 3 {
		t.Errorf("Total after second merge = %d, want 3", m.Total())
	}
	if got := m.FlippedOffsets(); !reflect.DeepEqual(got, []int{7, 42}) {
		t.Errorf("FlippedOffsets after re-observation = %v, want [7 42]", got)
	}
}

func TestMeasurementSingleScanCountsMatchOffsetCount(t *testing.T) {
	flips := []Flip{
		{Halfword: 3, Bit: 8},
		{Halfword: 9, Bit: 8},
		{Halfword: 100, Bit: 2},
	}
	m := newMeasurement([2]uint64{}, [2]uint64{})
	m.Merge(flips)

	if int(m.Total()) != len(flips) {
		t.Errorf("Total = %d, want %d", m.Total(), len(flips))
	}
	if len(m.FlippedOffsets()) != 3 {
		t.Errorf("FlippedOffsets = %v, want 3 distinct offsets", m.FlippedOffsets())
	}
}

func TestMeasurementRecordCarriesCompanionsAndScore(t *testing.T) {
	m := newMeasurement([2]uint64{0x3b4bd1, 0x3b4bd3}, [2]uint64{0x3b4c11, 0x3b4c13})
	m.Merge([]Flip{{Halfword: 42, Bit: 8}, {Halfword: 43, Bit: 8}})

	rec := m.Record(0x3b4bf1)
	if rec.VictimPFN != 0x3b4bf1 {
		t.Errorf("VictimPFN = 0x%x", rec.VictimPFN)
	}
	if rec.AbovePFN != [2]uint64{0x3b4bd1, 0x3b4bd3} || rec.BelowPFN != [2]uint64{0x3b4c11, 0x3b4c13} {
		t.Errorf("companions not carried: %+v", rec)
	}
	if rec.Score != 2 || rec.Bits[8] != 2 {
		t.Errorf("score/bits = %d/%d, want 2/2", rec.Score, rec.Bits[8])
	}
}

func TestPageRecordFlipsCreatesRecordOnce(t *testing.T) {
	p := &Page{Pfn: 0x1000}
	if p.Measurement() != nil {
		t.Fatal("fresh page should have no measurement record")
	}

	first := p.RecordFlips([2]uint64{1, 2}, [2]uint64{3, 4}, []Flip{{Halfword: 1, Bit: 0}})
	second := p.RecordFlips([2]uint64{9, 9}, [2]uint64{9, 9}, []Flip{{Halfword: 2, Bit: 0}})
	if first != second {
		t.Fatal("RecordFlips must reuse the record created on first observation")
	}
	if second.AbovePFNs != [2]uint64{1, 2} {
		t.Errorf("companion PFNs overwritten on merge: %+v", second.AbovePFNs)
	}
	if second.Total() != 2 {
		t.Errorf("Total = %d, want 2", second.Total())
	}
}
