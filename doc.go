/*
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
 */

// Package snakecharmer provides a shared-memory-style ring buffer for
// low-latency in-process streaming of fixed-size records.
//
// A mappedRegion maps its backing storage twice in virtual memory so that a
// transfer straddling the end of the region is observationally contiguous,
// with no manual wrap-splitting at the call site. Two channel types sit on
// top of it: CopyChannel, a single-producer/single-consumer channel that
// memcpys records in and out, and DirectChannel, a single-producer/
// multi-reader channel that instead hands out raw pointers into the region
// for zero-copy access, bounded by an explicit grab/release discipline.
//
// Neither channel type coordinates across process boundaries: both assume a
// single address space, and callers that need multiple readers or writers
// spread across processes are out of scope.
package snakecharmer
