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
	"os"
	"path/filepath"
	"testing"
)

func TestRecordFormatParseRoundTrip(t *testing.T) {
	want := Record{
		VictimPFN: 0x3b4bf1,
		AbovePFN:  [2]uint64{0x3b4bd1, 0x3b4bd3},
		BelowPFN:  [2]uint64{0x3b4c11, 0x3b4c13},
		Score:     137,
		Bits:      [bitsPerHalfword]int64{0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0},
	}

	line := want.Format()
	got, ok, err := ParseRecord(line)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if !ok {
		t.Fatalf("ParseRecord did not recognise its own Format() output: %q", line)
	}
	if got != want {
		t.Fatalf("round-trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestParseRecordIgnoresNonRecordLines(t *testing.T) {
	rec, ok, err := ParseRecord(catalogueHeader)
	if err != nil || ok {
		t.Fatalf("ParseRecord(header) = (%+v, %v, %v), want (_, false, nil)", rec, ok, err)
	}
	rec, ok, err = ParseRecord("")
	if err != nil || ok {
		t.Fatalf("ParseRecord(empty) = (%+v, %v, %v), want (_, false, nil)", rec, ok, err)
	}
}

func TestAppendRecordWritesHeaderOnceAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.txt")

	rec1 := Record{VictimPFN: 1, AbovePFN: [2]uint64{2, 3}, BelowPFN: [2]uint64{4, 5}, Score: 10}
	rec2 := Record{VictimPFN: 6, AbovePFN: [2]uint64{7, 8}, BelowPFN: [2]uint64{9, 10}, Score: 20}

	if err := AppendRecord(path, rec1); err != nil {
		t.Fatalf("AppendRecord 1: %v", err)
	}
	if err := AppendRecord(path, rec2); err != nil {
		t.Fatalf("AppendRecord 2: %v", err)
	}

	records, err := ReadCatalogue(path)
	if err != nil {
		t.Fatalf("ReadCatalogue: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].VictimPFN != 1 || records[1].VictimPFN != 6 {
		t.Errorf("unexpected record order: %+v", records)
	}
}

func TestReadCatalogueMissingFileIsEmptyNotError(t *testing.T) {
	records, err := ReadCatalogue(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err != nil {
		t.Fatalf("ReadCatalogue(missing): %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestVictimHintPathUsesHexPfn(t *testing.T) {
	got := VictimHintPath("data", 0x3b4bf1)
	want := "data/V_0x3b4bf1.out"
	if got != want {
		t.Fatalf("VictimHintPath = %q, want %q", got, want)
	}
}

// A target row already present in the catalogue (via its victim PFN)
// and a target row only ever mentioned in the status file must both
// land in the skip-set, and a row present in neither must not.
func TestAlreadyTestedRowsMergesCatalogueAndStatusFile(t *testing.T) {
	dir := t.TempDir()
	cataloguePath := filepath.Join(dir, "catalogue.txt")
	statusPath := filepath.Join(dir, "status.txt")

	const rowSize = 128 * 1024
	// A victim PFN whose physical address falls in row 7.
	victimPFN := uint64(rowSize/uint64(pageSize)) * 7
	if err := AppendRecord(cataloguePath, Record{VictimPFN: victimPFN, Score: 50}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if err := os.WriteFile(statusPath, []byte("Hammering row 42 took 1s -- ok\n"), 0o644); err != nil {
		t.Fatalf("WriteFile status: %v", err)
	}

	tested, err := AlreadyTestedRows(cataloguePath, statusPath, rowSize)
	if err != nil {
		t.Fatalf("AlreadyTestedRows: %v", err)
	}

	for _, row := range []int{7, 42} {
		if _, ok := tested[row]; !ok {
			t.Errorf("row %d missing from tested set %v", row, tested)
		}
	}
	if _, ok := tested[8]; ok {
		t.Errorf("row 8 unexpectedly marked tested: %v", tested)
	}
}

func TestAlreadyTestedRowsMissingFilesYieldsEmptySet(t *testing.T) {
	dir := t.TempDir()
	tested, err := AlreadyTestedRows(
		filepath.Join(dir, "no-catalogue.txt"),
		filepath.Join(dir, "no-status.txt"),
		128*1024)
	if err != nil {
		t.Fatalf("AlreadyTestedRows: %v", err)
	}
	if len(tested) != 0 {
		t.Fatalf("got %d tested rows, want 0", len(tested))
	}
}
