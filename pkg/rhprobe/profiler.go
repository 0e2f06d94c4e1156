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
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ProfileConfig parameterizes one profiling run.
type ProfileConfig struct {
	Fraction float64
	Dimms    int
	Family   Family
	Method   AttackMethod

	// Iterations is the hammer iteration count applied to every
	// bank-paired above/below pair. Defaults to DefaultIterations.
	Iterations int

	// AggressorPattern and VictimPattern fill the flanking and target
	// rows before each hammer pass; PatternDefault resolves to 0xFFFF
	// and 0x0000 respectively.
	AggressorPattern Pattern
	VictimPattern    Pattern

	CataloguePath string
	StatusPath    string
}

func (c ProfileConfig) iterations() int {
	if c.Iterations > 0 {
		return c.Iterations
	}
	return DefaultIterations
}

func appendStatus(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open status file")
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// Profile runs one profiling pass: it reserves Fraction of physical
// memory, groups it into rows, sweeps row triples in random order,
// hammers each bank-paired above/below page pair, measures flips on
// the target row, and appends every page with a non-zero flip total
// to the catalogue.
func Profile(cfg ProfileConfig) (*RunStats, error) {
	aggPattern := cfg.AggressorPattern.orRole(PatternAggressor)
	victPattern := cfg.VictimPattern.orRole(PatternVictim)

	mapping, err := AllocatePopulatedMapping(cfg.Fraction)
	if err != nil {
		return nil, err
	}
	defer mapping.Close()

	stats := &RunStats{}
	rowSize := RowSizeFor(cfg.Dimms)
	rows, err := CollectPagesByRow(mapping, LayoutConfig{Family: cfg.Family, Dimms: cfg.Dimms, RowSize: rowSize}, stats)
	if err != nil {
		return stats, err
	}
	if len(rows) < 3 {
		return stats, errors.Wrapf(ErrInsufficientPrivilege,
			"only %d rows recovered; re-run as root with pagemap access", len(rows))
	}

	tested, err := AlreadyTestedRows(cfg.CataloguePath, cfg.StatusPath, rowSize)
	if err != nil {
		return stats, err
	}

	indices := make([]int, len(rows)-2)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

	for _, aboveIdx := range indices {
		targetIdx := aboveIdx + 1
		belowIdx := aboveIdx + 2

		above, target, below := rows[aboveIdx], rows[targetIdx], rows[belowIdx]
		// Short rows were already tallied once each by CollectPagesByRow;
		// a triple touching one is skipped without counting it again.
		if !above.Complete(rowSize) || !target.Complete(rowSize) || !below.Complete(rowSize) {
			continue
		}
		if _, ok := tested[targetIdx]; ok {
			stats.bumpSkippedAlreadyTested()
			continue
		}

		InitRow(above.Pages, aggPattern)
		InitRow(target.Pages, victPattern)
		InitRow(below.Pages, aggPattern)

		start := time.Now()
		aboveByBank := PagesByBank(above.Pages)
		belowByBank := PagesByBank(below.Pages)
		for bank, aboves := range aboveByBank {
			belows, ok := belowByBank[bank]
			if !ok || len(aboves) == 0 || len(belows) == 0 {
				continue
			}
			if err := Hammer(cfg.Method, aboves[0].VirtAddr, belows[0].VirtAddr, cfg.iterations()); err != nil {
				return stats, err
			}
		}
		elapsed := time.Since(start)

		for i := range target.Pages {
			page := &target.Pages[i]
			a1, a2, ok1 := above.SameBankPair(page.Bank())
			b1, b2, ok2 := below.SameBankPair(page.Bank())
			if !ok1 || !ok2 {
				stats.bumpPatternMismatch()
				continue
			}

			flips := FindFlips(*page, victPattern)
			if len(flips) == 0 {
				continue
			}
			meas := page.RecordFlips([2]uint64{a1.Pfn, a2.Pfn}, [2]uint64{b1.Pfn, b2.Pfn}, flips)

			if err := AppendRecord(cfg.CataloguePath, meas.Record(page.Pfn)); err != nil {
				return stats, err
			}
		}

		if cfg.StatusPath != "" {
			line := statusLine(targetIdx, elapsed, stats)
			if err := appendStatus(cfg.StatusPath, line); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func statusLine(targetRow int, elapsed time.Duration, stats *RunStats) string {
	return "Hammering row " + strconv.Itoa(targetRow) + " took " + elapsed.String() + " -- " + stats.String()
}
