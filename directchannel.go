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

type indexKind int

const (
	kindWriter indexKind = iota
	kindReader
)

// indexRecord tracks a contiguous span [start,end) currently grabbed (or
// last grabbed) over the region, tagged with the role of its owner. The
// source keeps every record — reader and writer alike — in one id-keyed
// table even though the later, single-writer design holds exactly one
// writer record; this is preserved here (spec.md §9) so that BadKind stays
// reachable and meaningful: looking up a reader id against the writer's
// record (id 0) correctly reports a role mismatch instead of silently
// treating it as a reader.
type indexRecord struct {
	id    int
	kind  indexKind
	start int
	end   int
	inUse bool
}

// writerRecordID is the fixed id of the single writer record, created
// automatically at construction (spec.md §4.3, resolving the open question
// in §9/S4: the public write API takes no id at all, so there is nothing
// for a caller to get wrong).
const writerRecordID = 0

// DirectChannel is a single-producer/multi-reader zero-copy channel. The
// producer reserves a span with GrabWrite, writes into it directly, and
// acknowledges completion with ReleaseWrite; each reader does the same with
// GrabRead/ReleaseRead against its own registered id.
type DirectChannel struct {
	region *mappedRegion

	mu   sync.Mutex
	cond *sync.Cond

	records map[int]*indexRecord
	nextID  int

	minReadIndex int
	maxReadIndex int

	log diag.Logger
}

// DirectOption configures a DirectChannel at construction time.
type DirectOption func(*DirectChannel)

// WithDirectLogger overrides the default console logger built from Params.Level.
func WithDirectLogger(l diag.Logger) DirectOption {
	return func(d *DirectChannel) { d.log = l }
}

// NewDirectChannel allocates the channel's mappedRegion, auto-creates the
// single writer record, and returns a ready DirectChannel.
func NewDirectChannel(p Params, opts ...DirectOption) (*DirectChannel, error) {
	region, err := newMappedRegion(p)
	if err != nil {
		return nil, err
	}
	d := &DirectChannel{
		region: region,
		log:    diag.NewConsole(p.Level),
		records: map[int]*indexRecord{
			writerRecordID: {id: writerRecordID, kind: kindWriter},
		},
		nextID: writerRecordID + 1,
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	d.log.Trace("direct channel constructed", "region_bytes", region.resolved.RegionBytes, "num_elems", region.resolved.NumElems)
	return d, nil
}

// Close releases the channel's mapped region. The channel must not be used
// afterward.
func (d *DirectChannel) Close() error {
	return d.region.close()
}

// NumElems returns the buffer capacity in elements.
func (d *DirectChannel) NumElems() int { return d.region.resolved.NumElems }

// RegionBytes returns the buffer capacity in bytes.
func (d *DirectChannel) RegionBytes() int { return d.region.resolved.RegionBytes }

// ElemSize returns the configured element size in bytes.
func (d *DirectChannel) ElemSize() int { return d.region.resolved.ElemSize }

// MaxElemsPerWrite returns the configured per-write element cap.
func (d *DirectChannel) MaxElemsPerWrite() int { return d.region.resolved.MaxElemsPerWrite }

// MaxElemsPerRead returns the configured per-read element cap.
func (d *DirectChannel) MaxElemsPerRead() int { return d.region.resolved.MaxElemsPerRead }

// Direct exposes the mapped region's debug backdoor (spec.md §6).
func (d *DirectChannel) Direct(offset uintptr) unsafe.Pointer {
	return d.region.Direct(offset)
}

func (d *DirectChannel) writeRecord() *indexRecord {
	return d.records[writerRecordID]
}

// minWriteIndex is write.in_use ? write.start : write.end (spec.md §4.3).
// Caller must hold d.mu.
func (d *DirectChannel) minWriteIndex() int {
	w := d.writeRecord()
	if w.inUse {
		return w.start
	}
	return w.end
}

// AddReader registers a new reader and returns its id, to be used in
// subsequent GrabRead/ReleaseRead calls.
func (d *DirectChannel) AddReader() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.records[id] = &indexRecord{id: id, kind: kindReader}
	d.log.Info("added reader", "id", id, "total_records", len(d.records))
	return id
}

// RemoveReader unregisters a reader and recomputes min_read_index over the
// remaining readers, unblocking a writer the removed reader was pinning
// (spec.md §9 documents this as a source limitation; this is the opt-in
// escape hatch SPEC_FULL.md §4.5 adds on top of it).
func (d *DirectChannel) RemoveReader(id int) error {
	const op = "DirectChannel.RemoveReader"
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok || rec.kind != kindReader {
		return newErr(op, KindUnknownID)
	}
	if rec.inUse {
		return newErr(op, KindAlreadyInUse)
	}

	delete(d.records, id)

	// No readers left to pin the writer: fall back to the writer's own end
	// (whether or not a write grab is outstanding). Without this,
	// removing the last reader would leave minReadIndex at its stale
	// pre-removal value and the writer would stay starved forever, defeating
	// the whole point of RemoveReader.
	remaining := false
	minReadIndex := d.writeRecord().end
	for _, other := range d.records {
		if other.kind != kindReader {
			continue
		}
		progress := other.end
		if other.inUse {
			progress = other.start
		}
		if !remaining || progress < minReadIndex {
			minReadIndex = progress
			remaining = true
		}
	}
	d.minReadIndex = minReadIndex
	d.cond.Broadcast()
	return nil
}

// GrabWrite reserves n elements for the producer and publishes a pointer to
// the reserved span. The span must be released with ReleaseWrite before it
// can be grabbed again.
func (d *DirectChannel) GrabWrite(n int) (unsafe.Pointer, error) {
	const op = "DirectChannel.GrabWrite"
	if n > d.region.resolved.MaxElemsPerWrite {
		d.log.Error("requested too many elems this write", "n", n, "max", d.region.resolved.MaxElemsPerWrite)
		return nil, newErr(op, KindOversizeRequest)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.writeRecord()
	if w.inUse {
		return nil, newErr(op, KindAlreadyInUse)
	}

	bufferSpace := d.region.resolved.NumElems - (w.end - d.minReadIndex)
	if n > bufferSpace {
		d.log.Warn("insufficient space", "n", n, "buffer_space", bufferSpace)
		return nil, newErr(op, KindNoSpace)
	}

	w.start = w.end
	w.end += n
	w.inUse = true

	off := d.region.byteOffset(w.start)
	d.log.Debug("write grab", "elems_from", w.start, "elems_to", w.end, "byte_off", off)
	return d.region.ptr(off), nil
}

// ReleaseWrite acknowledges completion of the span from the last GrabWrite
// and wakes any readers blocked waiting for data.
func (d *DirectChannel) ReleaseWrite() error {
	const op = "DirectChannel.ReleaseWrite"
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.writeRecord()
	if !w.inUse {
		return newErr(op, KindNotInUse)
	}
	w.inUse = false
	d.cond.Broadcast()
	return nil
}

// GrabRead reserves n elements for the reader identified by readerID,
// waiting up to timeout for enough data to become available.
func (d *DirectChannel) GrabRead(n int, readerID int, timeout time.Duration) (unsafe.Pointer, error) {
	const op = "DirectChannel.GrabRead"
	if n > d.region.resolved.MaxElemsPerRead {
		d.log.Error("requested too many elems this read", "n", n, "max", d.region.resolved.MaxElemsPerRead)
		return nil, newErr(op, KindOversizeRequest)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[readerID]
	if !ok {
		return nil, newErr(op, KindUnknownID)
	}
	if rec.kind != kindReader {
		return nil, newErr(op, KindBadKind)
	}
	if rec.inUse {
		return nil, newErr(op, KindAlreadyInUse)
	}

	deadline := time.Now().Add(timeout)
	for n > d.minWriteIndex()-d.maxReadIndex {
		if !d.waitUntil(deadline) {
			d.log.Debug("read timeout", "reader_id", readerID, "n", n)
			return nil, newErr(op, KindEmpty)
		}
	}

	rec.start = d.maxReadIndex
	d.maxReadIndex += n
	rec.end = d.maxReadIndex
	rec.inUse = true

	off := d.region.byteOffset(rec.start)
	d.log.Debug("read grab", "reader_id", readerID, "elems_from", rec.start, "elems_to", rec.end, "byte_off", off)
	return d.region.ptr(off), nil
}

// ReleaseRead acknowledges completion of the span from the last GrabRead
// for readerID and recomputes min_read_index across all readers.
func (d *DirectChannel) ReleaseRead(readerID int) error {
	const op = "DirectChannel.ReleaseRead"
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[readerID]
	if !ok {
		return newErr(op, KindUnknownID)
	}
	if rec.kind != kindReader {
		return newErr(op, KindBadKind)
	}
	if !rec.inUse {
		return newErr(op, KindNotInUse)
	}

	minReadIndex := rec.end
	for _, other := range d.records {
		if other.kind != kindReader {
			continue
		}
		progress := other.end
		if other.inUse {
			progress = other.start
		}
		if progress < minReadIndex {
			minReadIndex = progress
		}
	}
	d.minReadIndex = minReadIndex
	rec.inUse = false
	return nil
}

// ElemsAvailableToRead returns min_write_index - max_read_index.
func (d *DirectChannel) ElemsAvailableToRead() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minWriteIndex() - d.maxReadIndex
}

func (d *DirectChannel) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.cond.Wait()
	return time.Now().Before(deadline)
}
