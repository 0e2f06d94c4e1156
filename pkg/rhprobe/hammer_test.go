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
	"testing"
	"unsafe"
)

func TestInitRowFillsEveryHalfword(t *testing.T) {
	buf := make([]uint16, halfwordsPerPage)
	page := Page{VirtAddr: uintptr(unsafe.Pointer(&buf[0]))}

	InitRow([]Page{page}, PatternStripedOffOn)
	for i, hw := range buf {
		if hw != 0x5555 {
			t.Fatalf("halfword %d = %#x, want 0x5555", i, hw)
		}
	}

	InitRow([]Page{page}, PatternVictim)
	for i, hw := range buf {
		if hw != 0 {
			t.Fatalf("halfword %d = %#x after victim fill, want 0", i, hw)
		}
	}
}

func TestPagesByBankGroupsAndPreservesOrder(t *testing.T) {
	pages := []Page{
		{Pfn: 1, bank: 0},
		{Pfn: 2, bank: 1},
		{Pfn: 3, bank: 0},
	}
	byBank := PagesByBank(pages)
	if len(byBank) != 2 {
		t.Fatalf("got %d banks, want 2", len(byBank))
	}
	if len(byBank[0]) != 2 || byBank[0][0].Pfn != 1 || byBank[0][1].Pfn != 3 {
		t.Errorf("bank 0 = %+v, want pages 1, 3 in walk order", byBank[0])
	}
	if len(byBank[1]) != 1 || byBank[1][0].Pfn != 2 {
		t.Errorf("bank 1 = %+v, want page 2", byBank[1])
	}
}

func TestHammerRejectsUnknownMethod(t *testing.T) {
	buf := make([]byte, 64)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	if err := Hammer(AttackMethod(99), addr, addr, 1); err == nil {
		t.Error("Hammer accepted an unknown method")
	}
}
