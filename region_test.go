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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamsResolveSizing(t *testing.T) {
	require := require.New(t)

	p := Params{ElemSize: 8, MaxElemsPerWrite: 4, MaxElemsPerRead: 4, Slack: 2}
	resolved := p.resolve(4096)

	// min_region_bytes = (Slack*MaxElemsPerRead + MaxElemsPerWrite) * ElemSize
	//                   = (2*4 + 4) * 8 = 96, well under one page.
	require.Equal(4096, resolved.RegionBytes)
	require.Equal(4096/8, resolved.NumElems)
	require.Equal(4096, resolved.OverlapBytes) // (4*8/4096 + 1) * 4096
}

func TestParamsResolveAlwaysAddsAPage(t *testing.T) {
	require := require.New(t)

	// min_region_bytes lands exactly on a page boundary; the source's
	// formula still rounds up to the next page rather than treating an
	// already-aligned size as sufficient.
	p := Params{ElemSize: 4096, MaxElemsPerWrite: 1, MaxElemsPerRead: 1, Slack: 0}
	minRegionBytes := (p.Slack*p.MaxElemsPerRead + p.MaxElemsPerWrite) * p.ElemSize
	require.Equal(4096, minRegionBytes)

	resolved := p.resolve(4096)
	require.Equal(2*4096, resolved.RegionBytes)
}

func TestParamsValidateRejectsBadInputs(t *testing.T) {
	require := require.New(t)

	_, err := Params{ElemSize: 0, MaxElemsPerWrite: 1, MaxElemsPerRead: 1, Slack: 1}.Resolve()
	require.Error(err)

	_, err = Params{ElemSize: 8, MaxElemsPerWrite: 0, MaxElemsPerRead: 1, Slack: 1}.Resolve()
	require.Error(err)

	_, err = Params{ElemSize: 8, MaxElemsPerWrite: 1, MaxElemsPerRead: 1, Slack: 0}.Resolve()
	require.Error(err)
}

// TestMappedRegionWrapAliasesOverlap exercises invariant I4: a transfer that
// straddles region_bytes is observationally contiguous, because the overlap
// pages alias the start of the region.
func TestMappedRegionWrapAliasesOverlap(t *testing.T) {
	require := require.New(t)

	p := Params{ElemSize: 1, MaxElemsPerWrite: 16, MaxElemsPerRead: 16, Slack: 1}
	region, err := newMappedRegion(p)
	require.NoError(err)
	defer region.close()

	pattern := []byte("wraparound-test!")
	require.LessOrEqual(len(pattern), region.resolved.OverlapBytes)

	start := region.resolved.RegionBytes - 4
	copy(region.sliceAt(start, len(pattern)), pattern)

	// All but the first 4 bytes of pattern landed past RegionBytes, in the
	// overlap; they must be visible at the corresponding offset from the start.
	tail := region.sliceAt(0, len(pattern)-4)
	require.Equal(pattern[4:], tail)

	head := region.sliceAt(start, 4)
	require.Equal(pattern[:4], head)
}

func TestByteOffsetWrapsModRegionBytes(t *testing.T) {
	require := require.New(t)

	p := Params{ElemSize: 8, MaxElemsPerWrite: 4, MaxElemsPerRead: 4, Slack: 1}
	region, err := newMappedRegion(p)
	require.NoError(err)
	defer region.close()

	require.Equal(0, region.byteOffset(region.resolved.NumElems))
	require.Equal(3*region.resolved.ElemSize, region.byteOffset(region.resolved.NumElems+3))
}

func TestMappedRegionDirectAliasesBase(t *testing.T) {
	require := require.New(t)

	p := Params{ElemSize: 8, MaxElemsPerWrite: 4, MaxElemsPerRead: 4, Slack: 1}
	region, err := newMappedRegion(p)
	require.NoError(err)
	defer region.close()

	region.sliceAt(0, 4)[0] = 0xAB
	got := (*byte)(region.Direct(0))
	require.Equal(byte(0xAB), *got)
}
