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

import "fmt"

// Params are the sizing parameters fixed at construction time and immutable
// thereafter. They mirror the constructor arguments of the source
// RingBuffer: elem_size, max_elems_per_write, max_elems_per_read, slack.
type Params struct {
	// ElemSize is the number of bytes per record. Must be > 0.
	ElemSize int
	// MaxElemsPerWrite bounds the number of elements a single write (or
	// grab_write) call may transfer.
	MaxElemsPerWrite int
	// MaxElemsPerRead bounds the number of elements a single read (or
	// grab_read) call may transfer.
	MaxElemsPerRead int
	// Slack is the headroom multiplier: min_region_bytes =
	// (Slack*MaxElemsPerRead + MaxElemsPerWrite) * ElemSize.
	Slack int
	// Level configures the channel's diagnostic logger. Empty means
	// "errors only". See internal/diag.ParseLevel.
	Level string
}

// ResolvedParams are the sizes derived from Params and the platform page
// size, per spec.md §3. They are exposed so a caller can predict NumElems
// from Params and page size without constructing a channel, matching the
// source's public getters (get_buffer_size_elems, get_buffer_size_bytes, ...).
type ResolvedParams struct {
	Params
	PageSize     int
	RegionBytes  int
	OverlapBytes int
	NumElems     int
}

func (p Params) validate() error {
	if p.ElemSize <= 0 {
		return fmt.Errorf("ElemSize must be > 0, got %d", p.ElemSize)
	}
	if p.MaxElemsPerWrite < 1 {
		return fmt.Errorf("MaxElemsPerWrite must be >= 1, got %d", p.MaxElemsPerWrite)
	}
	if p.MaxElemsPerRead < 1 {
		return fmt.Errorf("MaxElemsPerRead must be >= 1, got %d", p.MaxElemsPerRead)
	}
	if p.Slack < 1 {
		return fmt.Errorf("Slack must be >= 1, got %d", p.Slack)
	}
	return nil
}

// resolve computes region_bytes, overlap_bytes, and num_elems from p and the
// given page size, following the source's deliberately-not-ceil-div rounding
// (a multiple of page strictly greater than the minimum, always adding at
// least one page even when the minimum is already page-aligned).
func (p Params) resolve(pageSize int) ResolvedParams {
	minRegionBytes := (p.Slack*p.MaxElemsPerRead + p.MaxElemsPerWrite) * p.ElemSize
	regionBytes := (minRegionBytes/pageSize + 1) * pageSize
	numElems := regionBytes / p.ElemSize

	maxPerOp := p.MaxElemsPerRead
	if p.MaxElemsPerWrite > maxPerOp {
		maxPerOp = p.MaxElemsPerWrite
	}
	overlapBytes := (maxPerOp*p.ElemSize/pageSize + 1) * pageSize

	return ResolvedParams{
		Params:       p,
		PageSize:     pageSize,
		RegionBytes:  regionBytes,
		OverlapBytes: overlapBytes,
		NumElems:     numElems,
	}
}

// Resolve computes the derived sizes using the host's page size. It never
// maps memory and is safe to call purely for capacity planning.
func (p Params) Resolve() (ResolvedParams, error) {
	if err := p.validate(); err != nil {
		return ResolvedParams{}, err
	}
	return p.resolve(systemPageSize()), nil
}
