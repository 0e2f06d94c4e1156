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
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// InsufficientPrivilege, MappingFailure, and VictimWorkloadCrash are
// unrecoverable: they abort the current phase. IncompleteRow,
// CandidateNotLocatable, and PatternMismatch are recoverable: callers
// count them in a RunStats and continue.
var (
	ErrInsufficientPrivilege = errors.New("insufficient privilege (pagemap unreadable or mlock denied)")
	ErrMappingFailure        = errors.New("mapping allocation or population failed")
	ErrIncompleteRow         = errors.New("row has fewer pages than row_size/page_size")
	ErrCandidateNotLocatable = errors.New("catalogue entry not found in current mapping")
	ErrPatternMismatch       = errors.New("no two same-bank companion pages found")
	ErrVictimWorkloadCrash   = errors.New("external victim workload exited non-zero")
	ErrPfnUnavailable        = errors.New("page frame number unavailable")
	ErrUnsupportedArch       = errors.New("rowhammer primitives require linux/amd64")
)

func errInvalidAttackMethod(s string) error {
	return errors.Errorf("invalid attack method %q, expected \"rowhammer\" or \"rowpress\"", s)
}

func errInvalidPattern(s string) error {
	return errors.Errorf("invalid fill pattern %q, expected aggressor, victim, 0x5555, 0xaaaa, 0x00ff, or 0x0100", s)
}

// RunStats tallies recoverable errors encountered during a profiling,
// selection, or attack run. Unlike the unrecoverable error kinds, these
// are logged and counted rather than aborting the run.
type RunStats struct {
	mu sync.Mutex

	IncompleteRows       uint64
	CandidatesNotFound   uint64
	PatternMismatches    uint64
	SkippedAlreadyTested uint64
}

func (s *RunStats) bumpIncompleteRow() {
	s.mu.Lock()
	s.IncompleteRows++
	s.mu.Unlock()
}

func (s *RunStats) bumpCandidateNotFound() {
	s.mu.Lock()
	s.CandidatesNotFound++
	s.mu.Unlock()
}

func (s *RunStats) bumpPatternMismatch() {
	s.mu.Lock()
	s.PatternMismatches++
	s.mu.Unlock()
}

func (s *RunStats) bumpSkippedAlreadyTested() {
	s.mu.Lock()
	s.SkippedAlreadyTested++
	s.mu.Unlock()
}

// String renders a one-line summary suitable for the status file or a
// final log line.
func (s *RunStats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf(
		"incomplete_rows=%d candidates_not_found=%d pattern_mismatches=%d skipped_already_tested=%d",
		s.IncompleteRows, s.CandidatesNotFound, s.PatternMismatches, s.SkippedAlreadyTested,
	)
}
