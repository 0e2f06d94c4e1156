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

// A stub that flips once every 256 iterations, with the default
// threshold of 7, must converge to 1792: the minimum iteration count
// where 1792/256 = 7.
func TestCheckAttackTimeNeededConvergesOnStubScenario(t *testing.T) {
	measure := func(iterations int) int { return iterations / 256 }

	got, _ := CheckAttackTimeNeeded(measure, CalibrateConfig{Threshold: 7})
	if got != 1792 {
		t.Fatalf("CheckAttackTimeNeeded = %d, want 1792", got)
	}
}

func TestCheckAttackTimeNeededDefaultsThreshold(t *testing.T) {
	calls := 0
	measure := func(iterations int) int {
		calls++
		return iterations / 256
	}
	got, _ := CheckAttackTimeNeeded(measure, CalibrateConfig{})
	if got != 1792 {
		t.Fatalf("CheckAttackTimeNeeded with zero-value config = %d, want 1792 (default threshold 7)", got)
	}
	if calls == 0 {
		t.Fatal("measure was never called")
	}
}

func TestCheckAttackTimeNeededMonotonicInThreshold(t *testing.T) {
	measure := func(iterations int) int { return iterations / 100 }

	low, _ := CheckAttackTimeNeeded(measure, CalibrateConfig{Threshold: 2})
	high, _ := CheckAttackTimeNeeded(measure, CalibrateConfig{Threshold: 20})
	if high <= low {
		t.Fatalf("expected a higher threshold to require more iterations: low=%d high=%d", low, high)
	}
}
