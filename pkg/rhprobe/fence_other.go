//go:build !amd64

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

import "unsafe"

// FlushCacheLine is unavailable outside amd64. Callers must check
// runtime.GOARCH (hammer.go does, returning ErrUnsupportedArch) before
// reaching these stubs.
func FlushCacheLine(addr uintptr) {}

// FlushBytes is unavailable outside amd64.
func FlushBytes(p unsafe.Pointer, n uintptr) {}

// LoadFence is unavailable outside amd64.
func LoadFence() {}

// StoreFence is unavailable outside amd64.
func StoreFence() {}

// FullFence is unavailable outside amd64.
func FullFence() {}
