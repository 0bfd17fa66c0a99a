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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radwaverf/snake-charmer/internal/diag"
	"github.com/stretchr/testify/require"
)

func newTestCopyChannel(t *testing.T, elemSize, maxWrite, maxRead, slack int) *CopyChannel {
	t.Helper()
	ch, err := NewCopyChannel(Params{
		ElemSize:         elemSize,
		MaxElemsPerWrite: maxWrite,
		MaxElemsPerRead:  maxRead,
		Slack:            slack,
	}, WithLogger(diag.Noop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// S1: a basic write followed by a read returns exactly what was written.
func TestCopyChannelWriteReadRoundTrip(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 8, 4, 4, 2)

	src := []byte("abcdefgh01234567") // two 8-byte elements
	require.NoError(ch.Write(src, 2, 0))

	dst := make([]byte, 16)
	require.NoError(ch.Read(dst, 2, time.Second, -1))
	require.Equal(src, dst)
}

// S2: writing more than fits without an intervening read fails NoSpace, and
// never blocks.
func TestCopyChannelWriteNoSpace(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 8, 4, 4, 1)
	numElems := ch.NumElems()

	// Fill in chunks no larger than MaxElemsPerWrite, since a single Write
	// over that cap fails OversizeRequest instead.
	buf := make([]byte, 8*ch.MaxElemsPerWrite())
	for written := 0; written < numElems; {
		n := ch.MaxElemsPerWrite()
		if n > numElems-written {
			n = numElems - written
		}
		require.NoError(ch.Write(buf, n, 0))
		written += n
	}

	overflow := make([]byte, 8)
	start := time.Now()
	err := ch.Write(overflow, 1, 0)
	require.Less(time.Since(start), 50*time.Millisecond, "Write must not block")

	var cerr *Error
	require.True(errors.As(err, &cerr))
	require.Equal(KindNoSpace, cerr.Kind)
	require.True(errors.Is(err, ErrNoSpace))
}

// S3: a read on an empty channel blocks until its timeout, then fails Empty.
func TestCopyChannelReadEmptyTimesOut(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 8, 4, 4, 2)

	dst := make([]byte, 8)
	start := time.Now()
	err := ch.Read(dst, 1, 50*time.Millisecond, -1)
	elapsed := time.Since(start)

	require.True(errors.Is(err, ErrEmpty))
	require.GreaterOrEqual(elapsed, 50*time.Millisecond)
}

// A concurrent writer unblocks a waiting reader before the timeout expires.
func TestCopyChannelReadUnblocksOnWrite(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 4, 2, 2, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		require.NoError(ch.Write([]byte("ping"), 1, 0))
	}()

	dst := make([]byte, 4)
	require.NoError(ch.Read(dst, 1, time.Second, -1))
	require.Equal("ping", string(dst))
	wg.Wait()
}

// Writing and reading past RegionBytes repeatedly exercises the wrap
// mapping: the monotonic index keeps climbing while the physical offset
// cycles.
func TestCopyChannelWrapsAcrossRegionBoundary(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 1, 8, 8, 1)
	numElems := ch.NumElems()

	for round := 0; round < numElems*3; round++ {
		b := byte(round % 256)
		require.NoError(ch.Write([]byte{b}, 1, 0))

		dst := make([]byte, 1)
		require.NoError(ch.Read(dst, 1, time.Second, -1))
		require.Equal(b, dst[0])
	}
}

// A peek-style read (advance < n) re-reads the same elements next time.
func TestCopyChannelPeekDoesNotAdvanceFully(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 4, 4, 4, 2)
	require.NoError(ch.Write([]byte("abcdwxyz"), 2, 0))

	dst := make([]byte, 4)
	require.NoError(ch.Read(dst, 1, time.Second, 0)) // peek: advance by 0
	require.Equal("abcd", string(dst))

	// Nothing consumed: the same element is read again.
	require.NoError(ch.Read(dst, 1, time.Second, -1))
	require.Equal("abcd", string(dst))

	require.NoError(ch.Read(dst, 1, time.Second, -1))
	require.Equal("wxyz", string(dst))
}

func TestCopyChannelOversizeRequest(t *testing.T) {
	require := require.New(t)

	ch := newTestCopyChannel(t, 8, 2, 2, 2)

	err := ch.Write(make([]byte, 8*3), 3, 0)
	require.True(errors.Is(err, ErrOversizeRequest))

	err = ch.Read(make([]byte, 8*3), 3, time.Millisecond, -1)
	require.True(errors.Is(err, ErrOversizeRequest))
}
