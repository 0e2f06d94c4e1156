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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// catalogueHeader is written once, at the start of a new catalogue or
// victim-page hint file.
const catalogueHeader = "\tPage\taPFN1\taPFN2\tbPFN1\tbPFN2\tFlips\tFlipped bits"

// Record is one persisted catalogue line: a victim page, its two
// same-bank above and below companions, a score, and the 16-entry
// per-bit flip histogram. Score is stored and round-tripped verbatim;
// it is not required to equal the sum of Bits (the profiler writes the
// raw flip total, the selector overwrites it with a confirmation
// score).
type Record struct {
	VictimPFN uint64
	AbovePFN  [2]uint64
	BelowPFN  [2]uint64
	Score     int64
	Bits      [bitsPerHalfword]int64
}

// Format renders r in the catalogue's compat-critical text format:
// `>` followed by tab-separated hex PFNs, decimal score, and a
// bracketed comma-separated 16-entry bit array.
func (r Record) Format() string {
	var bits strings.Builder
	bits.WriteByte('[')
	for i, b := range r.Bits {
		if i > 0 {
			bits.WriteByte(',')
		}
		fmt.Fprintf(&bits, "%d", b)
	}
	bits.WriteByte(']')
	return fmt.Sprintf(">0x%x\t0x%x\t0x%x\t0x%x\t0x%x\t%d\t%s",
		r.VictimPFN, r.AbovePFN[0], r.AbovePFN[1], r.BelowPFN[0], r.BelowPFN[1], r.Score, bits.String())
}

// ParseRecord parses one catalogue line. ok is false (with a nil
// error) for lines that don't start with '>': per spec these are
// silently ignored rather than treated as malformed.
func ParseRecord(line string) (rec Record, ok bool, err error) {
	if !strings.HasPrefix(line, ">") {
		return Record{}, false, nil
	}
	fields := strings.Split(strings.TrimPrefix(line, ">"), "\t")
	if len(fields) != 7 {
		return Record{}, false, errors.Errorf("catalogue: expected 7 fields, got %d", len(fields))
	}

	pfns := make([]uint64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(strings.TrimPrefix(fields[i], "0x"), 16, 64)
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "catalogue: field %d", i)
		}
		pfns[i] = v
	}
	score, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "catalogue: score")
	}

	bitsField := strings.TrimSpace(fields[6])
	bitsField = strings.TrimPrefix(bitsField, "[")
	bitsField = strings.TrimSuffix(bitsField, "]")
	parts := strings.Split(bitsField, ",")
	if len(parts) != bitsPerHalfword {
		return Record{}, false, errors.Errorf("catalogue: expected %d bit entries, got %d", bitsPerHalfword, len(parts))
	}
	var bits [bitsPerHalfword]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "catalogue: bit entry %d", i)
		}
		bits[i] = v
	}

	return Record{
		VictimPFN: pfns[0],
		AbovePFN:  [2]uint64{pfns[1], pfns[2]},
		BelowPFN:  [2]uint64{pfns[3], pfns[4]},
		Score:     score,
		Bits:      bits,
	}, true, nil
}

// ReadCatalogue reads every record line from path. A missing file
// yields an empty slice and no error: an empty catalogue is the normal
// state of a first profiling run. Malformed non-`>`-prefixed lines are
// skipped; malformed `>`-prefixed lines are reported.
func ReadCatalogue(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open catalogue")
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, ok, err := ParseRecord(scanner.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan catalogue")
	}
	return records, nil
}

// AppendRecord appends rec to the catalogue at path, creating it (and
// writing the header line) if it does not already exist.
func AppendRecord(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open catalogue for append")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat catalogue")
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(catalogueHeader + "\n"); err != nil {
			return errors.Wrap(err, "write catalogue header")
		}
	}
	if _, err := f.WriteString(rec.Format() + "\n"); err != nil {
		return errors.Wrap(err, "write catalogue record")
	}
	return nil
}

// VictimHintPath returns the path of the per-victim hint file the
// attack harness reads to recover a pre-profiled tuple without
// re-running the selector: `<dataDir>/V_<pfn>.out`, PFN in hex.
func VictimHintPath(dataDir string, victimPFN uint64) string {
	return fmt.Sprintf("%s/V_%#x.out", dataDir, victimPFN)
}

// WriteHint persists cand to its victim hint file under dataDir, using
// the same record format as the catalogue, so the attack harness can
// recover a confirmed candidate's final per-bit array without
// re-running the selector.
func WriteHint(dataDir string, cand PageCandidate) error {
	rec := Record{
		VictimPFN: cand.Victim.Pfn,
		AbovePFN:  [2]uint64{cand.Above[0].Pfn, cand.Above[1].Pfn},
		BelowPFN:  [2]uint64{cand.Below[0].Pfn, cand.Below[1].Pfn},
		Score:     cand.Score,
		Bits:      cand.Bits,
	}
	return AppendRecord(VictimHintPath(dataDir, cand.Victim.Pfn), rec)
}

// hammeringRowRe matches a profiler status line's target row index.
var hammeringRowRe = regexp.MustCompile(`Hammering row (\d+)`)

// AlreadyTestedRows reconstructs the set of target row indices a prior
// profiling run already covered, so a resumed run can skip them. The
// skip-set is the union of two sources: every victim PFN already
// recorded in the catalogue, converted to a row index under rowSize,
// and every row index named in a "Hammering row <N> ..." line of the
// status file.
func AlreadyTestedRows(cataloguePath, statusPath string, rowSize uint64) (map[int]struct{}, error) {
	set := make(map[int]struct{})

	records, err := ReadCatalogue(cataloguePath)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		phys := uintptr(rec.VictimPFN) * uintptr(pageSize)
		set[int(RowIndex(phys, rowSize))] = struct{}{}
	}

	data, err := os.ReadFile(statusPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read status file")
	}
	for _, m := range hammeringRowRe.FindAllStringSubmatch(string(data), -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			set[n] = struct{}{}
		}
	}

	return set, nil
}
