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

// Command ringbuf-bench exercises CopyChannel and DirectChannel end to end:
// it reports the derived sizing for a configuration, then probes the chosen
// channel. In copy mode it writes progressively larger batches (1, 2, ...
// up to MaxElemsPerWrite elements) until a write fails, the way the source's
// capacity-debug tool does for the ring it measures, and reads them back. In
// direct mode it runs four grab/release rounds of MaxElemsPerWrite elements
// for one reader, stopping early if a grab fails.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	snakecharmer "github.com/radwaverf/snake-charmer"
)

func main() {
	elemSize := flag.Int("elem-size", 64, "bytes per element")
	maxWrite := flag.Int("max-write", 32, "max elements per write/grab_write")
	maxRead := flag.Int("max-read", 32, "max elements per read/grab_read")
	slack := flag.Int("slack", 2, "headroom multiplier")
	level := flag.String("level", "info", "log level: trace, debug, info, warn, error")
	mode := flag.String("mode", "copy", "which channel to probe: copy or direct")
	flag.Parse()

	params := snakecharmer.Params{
		ElemSize:         *elemSize,
		MaxElemsPerWrite: *maxWrite,
		MaxElemsPerRead:  *maxRead,
		Slack:            *slack,
		Level:            *level,
	}

	resolved, err := params.Resolve()
	if err != nil {
		log.Fatalf("invalid params: %v", err)
	}
	fmt.Printf("=== Derived Sizing ===\n")
	fmt.Printf("page_size:    %d\n", resolved.PageSize)
	fmt.Printf("region_bytes: %d\n", resolved.RegionBytes)
	fmt.Printf("overlap_bytes: %d\n", resolved.OverlapBytes)
	fmt.Printf("num_elems:    %d\n", resolved.NumElems)

	switch *mode {
	case "copy":
		probeCopyChannel(params)
	case "direct":
		probeDirectChannel(params)
	default:
		log.Fatalf("unknown -mode %q (want copy or direct)", *mode)
	}
}

func probeCopyChannel(params snakecharmer.Params) {
	ch, err := snakecharmer.NewCopyChannel(params)
	if err != nil {
		log.Fatalf("NewCopyChannel: %v", err)
	}
	defer ch.Close()

	fmt.Printf("\n=== CopyChannel Write Probe ===\n")
	buf := make([]byte, params.ElemSize*params.MaxElemsPerWrite)
	written := 0
	for n := 1; n <= params.MaxElemsPerWrite; n++ {
		if err := ch.Write(buf, n, 0); err != nil {
			fmt.Printf("write %d elems: FAIL (%v)\n", n, err)
			break
		}
		written += n
		fmt.Printf("write %d elems: OK (total %d)\n", n, written)
	}

	fmt.Printf("\n=== CopyChannel Read-Back ===\n")
	dst := make([]byte, params.ElemSize*params.MaxElemsPerRead)
	for written > 0 {
		n := params.MaxElemsPerRead
		if n > written {
			n = written
		}
		if err := ch.Read(dst, n, 100*time.Millisecond, -1); err != nil {
			fmt.Printf("read %d elems: FAIL (%v)\n", n, err)
			break
		}
		written -= n
		fmt.Printf("read %d elems: OK (remaining %d)\n", n, written)
	}
}

func probeDirectChannel(params snakecharmer.Params) {
	ch, err := snakecharmer.NewDirectChannel(params)
	if err != nil {
		log.Fatalf("NewDirectChannel: %v", err)
	}
	defer ch.Close()

	reader := ch.AddReader()
	fmt.Printf("\n=== DirectChannel Grab/Release Probe (reader %d) ===\n", reader)

	for round := 1; round <= 4; round++ {
		n := params.MaxElemsPerWrite
		ptr, err := ch.GrabWrite(n)
		if err != nil {
			fmt.Printf("round %d: grab_write FAIL (%v)\n", round, err)
			break
		}
		_ = ptr // the caller would write n*ElemSize bytes through this pointer here
		if err := ch.ReleaseWrite(); err != nil {
			log.Fatalf("release_write: %v", err)
		}

		rptr, err := ch.GrabRead(n, reader, 100*time.Millisecond)
		if err != nil {
			fmt.Printf("round %d: grab_read FAIL (%v)\n", round, err)
			break
		}
		_ = rptr
		if err := ch.ReleaseRead(reader); err != nil {
			log.Fatalf("release_read: %v", err)
		}
		fmt.Printf("round %d: OK, available=%d\n", round, ch.ElemsAvailableToRead())
	}
}
