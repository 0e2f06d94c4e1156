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

import "time"

// startIterations is the exponential search's starting point, 2^10.
const startIterations = 1 << 10

// CalibrateConfig parameterizes CheckAttackTimeNeeded. Threshold was
// a hard-coded 7 in the system this was modelled on; exposed here as
// configuration.
type CalibrateConfig struct {
	// Threshold is the flip count a candidate must reach. Default 7.
	Threshold int
}

func (c *CalibrateConfig) setDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 7
	}
}

// FlipMeasurer returns the number of flips observed after hammering
// for the given iteration count. Callers doing real calibration hammer
// a PageCandidate's pair and count flips on the victim; tests supply a
// deterministic stub.
type FlipMeasurer func(iterations int) int

// CheckAttackTimeNeeded finds the minimum hammer iteration count that
// makes measure report at least cfg.Threshold flips. It first doubles
// the iteration count from 1024 until the threshold is met, then
// binary-searches the bracket down to a single-iteration resolution.
// Returns the minimal iteration count and the wall-clock time spent
// searching.
func CheckAttackTimeNeeded(measure FlipMeasurer, cfg CalibrateConfig) (iterations int, elapsed time.Duration) {
	cfg.setDefaults()
	start := time.Now()

	lo, hi := 0, startIterations
	for measure(hi) < cfg.Threshold {
		lo = hi
		hi *= 2
	}

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if measure(mid) >= cfg.Threshold {
			hi = mid
		} else {
			lo = mid
		}
	}

	return hi, time.Since(start)
}

// CalibrateCandidate runs CheckAttackTimeNeeded against a live
// PageCandidate, refilling the aggressor and victim pages, hammering
// its first above/below pair, and recounting flips on the victim page
// for each trial iteration count.
func CalibrateCandidate(method AttackMethod, cand PageCandidate, cfg CalibrateConfig) (iterations int, elapsed time.Duration) {
	measure := func(iters int) int {
		InitRow(cand.Above[:], PatternAggressor)
		InitRow(cand.Below[:], PatternAggressor)
		InitRow([]Page{cand.Victim}, PatternVictim)
		_ = Hammer(method, cand.Above[0].VirtAddr, cand.Below[0].VirtAddr, iters)
		flips := FindFlips(cand.Victim, PatternVictim)
		return len(flips)
	}
	return CheckAttackTimeNeeded(measure, cfg)
}
