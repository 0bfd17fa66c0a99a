/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package snakecharmer

import (
	"fmt"
	"unsafe"
)

// mappedRegion is the backing store shared by CopyChannel and DirectChannel:
// a byte region of resolved.RegionBytes such that the next
// resolved.OverlapBytes bytes of virtual address space alias the start of
// the region (spec.md §4.1, invariant I4).
//
// A mappedRegion is allocated by a channel constructor, held exclusively by
// that channel, and released by the channel's Close.
type mappedRegion struct {
	resolved ResolvedParams
	mem      []byte // len == RegionBytes+OverlapBytes, backed by the OS mapping
	base     unsafe.Pointer
	unmap    func() error
}

func newMappedRegion(p Params) (*mappedRegion, error) {
	resolved, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	mem, unmap, err := mapRegion(resolved.RegionBytes, resolved.OverlapBytes)
	if err != nil {
		return nil, fmt.Errorf("mapping region: %w", err)
	}
	return &mappedRegion{
		resolved: resolved,
		mem:      mem,
		base:     unsafe.Pointer(&mem[0]),
		unmap:    unmap,
	}, nil
}

func (r *mappedRegion) close() error {
	return r.unmap()
}

// ptr returns base+off as an unsafe.Pointer. Callers are responsible for
// only ever using offsets in [0, RegionBytes+OverlapBytes).
func (r *mappedRegion) ptr(off int) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.base) + uintptr(off))
}

// sliceAt returns a []byte view of n bytes starting at byte offset off. It
// never copies; the returned slice aliases the mapped region.
func (r *mappedRegion) sliceAt(off, n int) []byte {
	return unsafe.Slice((*byte)(r.ptr(off)), n)
}

// byteOffset derives a byte offset from a monotonic element index, per
// spec.md §3: (index * elem_size) mod region_bytes.
func (r *mappedRegion) byteOffset(index int) int {
	return (index * r.resolved.ElemSize) % r.resolved.RegionBytes
}

// Direct is the debug/testing backdoor of spec.md §6: a raw pointer at
// base_ptr+offset, letting tests validate the wrap mapping by writing at
// offset RegionBytes and reading at offset 0 (or vice versa). It is not
// gated behind a build tag: unlike the C++ source's "#if TESTING==1", Go has
// no equivalent preprocessor story, and an unsafe.Pointer getter costs
// nothing in a binary that never calls it.
func (r *mappedRegion) Direct(offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(r.base) + offset)
}
