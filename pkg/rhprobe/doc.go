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

// Package rhprobe implements a DRAM Rowhammer profiler: it reserves
// physical memory, reconstructs the virtual-to-physical and
// physical-to-DRAM-bank mappings, hammers adjacent rows to induce bit
// flips, catalogues which page frames flip reliably, and stages a
// memory-massage handoff that places a victim workload on a
// known-vulnerable frame.
package rhprobe
