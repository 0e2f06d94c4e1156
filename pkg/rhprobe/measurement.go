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

import "sort"

// Measurement is a page's cumulative flip record: the two same-bank
// companion PFNs flanking it on each side, a per-bit-position flip
// histogram, and the half-word offsets at which any flip was observed.
// It is created on the first flip observation and mutated monotonically
// (counts only grow) across repeated hammer passes; it dies with the
// mapping that owns the page.
type Measurement struct {
	AbovePFNs [2]uint64
	BelowPFNs [2]uint64
	Bits      [bitsPerHalfword]uint64

	offsets map[int]struct{}
}

func newMeasurement(above, below [2]uint64) *Measurement {
	return &Measurement{
		AbovePFNs: above,
		BelowPFNs: below,
		offsets:   make(map[int]struct{}),
	}
}

// Merge folds one scan's flips into the cumulative record. Counts at
// each bit position only ever increase; offsets are deduplicated.
func (m *Measurement) Merge(flips []Flip) {
	for _, f := range flips {
		m.Bits[f.Bit]++
		m.offsets[f.Halfword] = struct{}{}
	}
}

// Total returns the cumulative flip count across all bit positions.
func (m *Measurement) Total() uint64 {
	var total uint64
	for _, c := range m.Bits {
		total += c
	}
	return total
}

// FlippedOffsets returns the sorted half-word offsets at which any bit
// has flipped so far.
func (m *Measurement) FlippedOffsets() []int {
	out := make([]int, 0, len(m.offsets))
	for off := range m.offsets {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}

// Record renders the measurement as a catalogue record for victimPFN,
// with the cumulative flip total as the score.
func (m *Measurement) Record(victimPFN uint64) Record {
	rec := Record{
		VictimPFN: victimPFN,
		AbovePFN:  m.AbovePFNs,
		BelowPFN:  m.BelowPFNs,
		Score:     int64(m.Total()),
	}
	for i, c := range m.Bits {
		rec.Bits[i] = int64(c)
	}
	return rec
}
