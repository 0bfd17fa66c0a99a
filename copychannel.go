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
	"sync"
	"time"
	"unsafe"

	"github.com/radwaverf/snake-charmer/internal/diag"
)

// CopyChannel is a single-producer/single-consumer channel layered on a
// mappedRegion. Write and Read memcpy through monotonically increasing
// logical indices and coordinate via a mutex and condition variable.
//
// At most one Write and one Read execute at a time; Write never blocks, and
// Read blocks up to its timeout for enough data to arrive.
type CopyChannel struct {
	region *mappedRegion

	mu   sync.Mutex
	cond *sync.Cond

	writeIndex int
	readIndex  int

	log diag.Logger
}

// CopyOption configures a CopyChannel at construction time.
type CopyOption func(*CopyChannel)

// WithLogger overrides the default console logger built from Params.Level.
func WithLogger(l diag.Logger) CopyOption {
	return func(c *CopyChannel) { c.log = l }
}

// NewCopyChannel allocates the channel's mappedRegion and returns a ready
// CopyChannel. A non-nil error means construction failed (spec.md §7,
// Fatal) and there is no usable channel to release.
func NewCopyChannel(p Params, opts ...CopyOption) (*CopyChannel, error) {
	region, err := newMappedRegion(p)
	if err != nil {
		return nil, err
	}
	c := &CopyChannel{
		region: region,
		log:    diag.NewConsole(p.Level),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	c.log.Trace("copy channel constructed", "region_bytes", region.resolved.RegionBytes, "num_elems", region.resolved.NumElems)
	return c, nil
}

// Close releases the channel's mapped region. The channel must not be used
// afterward.
func (c *CopyChannel) Close() error {
	return c.region.close()
}

// NumElems returns the buffer capacity in elements.
func (c *CopyChannel) NumElems() int { return c.region.resolved.NumElems }

// RegionBytes returns the buffer capacity in bytes.
func (c *CopyChannel) RegionBytes() int { return c.region.resolved.RegionBytes }

// ElemSize returns the configured element size in bytes.
func (c *CopyChannel) ElemSize() int { return c.region.resolved.ElemSize }

// MaxElemsPerWrite returns the configured per-write element cap.
func (c *CopyChannel) MaxElemsPerWrite() int { return c.region.resolved.MaxElemsPerWrite }

// MaxElemsPerRead returns the configured per-read element cap.
func (c *CopyChannel) MaxElemsPerRead() int { return c.region.resolved.MaxElemsPerRead }

// Direct exposes the mapped region's debug backdoor (spec.md §6): a raw
// pointer at base_ptr+offset, for tests that want to validate the wrap
// mapping directly (e.g. writing at offset RegionBytes and reading at
// offset 0).
func (c *CopyChannel) Direct(offset uintptr) unsafe.Pointer {
	return c.region.Direct(offset)
}

// Write copies n elements from src into the buffer. It never blocks: if
// there isn't room, it fails immediately with NoSpace. The timeout
// parameter exists for API parity with the source header but is unused
// here, per spec.md §9's resolution of that open question — the write path
// stays strictly non-blocking.
func (c *CopyChannel) Write(src []byte, n int, _ time.Duration) error {
	const op = "CopyChannel.Write"
	if n > c.region.resolved.MaxElemsPerWrite {
		c.log.Error("requested too many elems this write", "n", n, "max", c.region.resolved.MaxElemsPerWrite)
		return newErr(op, KindOversizeRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeIndex+n-c.readIndex > c.region.resolved.NumElems {
		c.log.Warn("insufficient slack", "write_index", c.writeIndex, "read_index", c.readIndex, "n", n)
		return newErr(op, KindNoSpace)
	}

	off := c.region.byteOffset(c.writeIndex)
	c.log.Debug("writing", "elems_from", c.writeIndex, "elems_to", c.writeIndex+n, "byte_off", off)
	copy(c.region.sliceAt(off, n*c.region.resolved.ElemSize), src[:n*c.region.resolved.ElemSize])

	c.writeIndex += n
	c.cond.Signal()
	return nil
}

// Read copies n elements into dst, waiting up to timeout for enough data to
// become available. If advance is negative, the read index advances by n;
// otherwise it advances by advance, supporting peek-style lookahead reads.
func (c *CopyChannel) Read(dst []byte, n int, timeout time.Duration, advance int) error {
	const op = "CopyChannel.Read"
	if n > c.region.resolved.MaxElemsPerRead {
		c.log.Error("requested too many elems this read", "n", n, "max", c.region.resolved.MaxElemsPerRead)
		return newErr(op, KindOversizeRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for c.readIndex+n > c.writeIndex {
		if !c.waitUntil(deadline) {
			c.log.Debug("read timeout", "read_index", c.readIndex, "write_index", c.writeIndex, "n", n)
			return newErr(op, KindEmpty)
		}
	}

	off := c.region.byteOffset(c.readIndex)
	c.log.Debug("reading", "elems_from", c.readIndex, "elems_to", c.readIndex+n, "byte_off", off)
	copy(dst[:n*c.region.resolved.ElemSize], c.region.sliceAt(off, n*c.region.resolved.ElemSize))

	if advance < 0 {
		c.readIndex += n
	} else {
		c.readIndex += advance
	}
	return nil
}

// waitUntil waits on c.cond until woken or deadline passes, returning false
// on timeout. c.mu must be held by the caller; it is released while
// waiting, matching sync.Cond.Wait's contract.
func (c *CopyChannel) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.cond.Wait()
	return time.Now().Before(deadline)
}
