//go:build linux && (amd64 || arm64)

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
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func systemPageSize() int {
	return unix.Getpagesize()
}

// mapRegion implements the construction algorithm of spec.md §4.1 on
// POSIX: reserve a PROT_NONE placeholder spanning regionBytes+overlapBytes,
// back regionBytes of it with an anonymous, already-unlinked temporary file
// (the Go equivalent of the source's fileno(tmpfile())), then map that file
// twice with MAP_FIXED into the placeholder: once at offset 0 covering
// regionBytes, once at offset regionBytes covering overlapBytes. Both
// mappings alias the same pages, which is what makes a transfer that
// straddles regionBytes observationally contiguous (invariant I4).
func mapRegion(regionBytes, overlapBytes int) ([]byte, func() error, error) {
	total := regionBytes + overlapBytes

	placeholder, err := unix.Mmap(-1, 0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, fmt.Errorf("reserving placeholder range: %w", err)
	}
	base := uintptr(unsafe.Pointer(&placeholder[0]))

	backing, err := os.CreateTemp("", "snake-charmer-ring-*")
	if err != nil {
		_ = unix.Munmap(placeholder)
		return nil, nil, fmt.Errorf("creating backing file: %w", err)
	}
	// Unlink immediately: the fd keeps the inode (and the mappings onto it)
	// alive for as long as this process holds them, with no named file left
	// behind on disk.
	_ = os.Remove(backing.Name())
	defer backing.Close()

	if err := backing.Truncate(int64(regionBytes)); err != nil {
		_ = unix.Munmap(placeholder)
		return nil, nil, fmt.Errorf("sizing backing file: %w", err)
	}
	fd := int(backing.Fd())

	if err := mmapFixed(base, regionBytes, fd, 0); err != nil {
		_ = unix.Munmap(placeholder)
		return nil, nil, fmt.Errorf("mapping region: %w", err)
	}
	if err := mmapFixed(base+uintptr(regionBytes), overlapBytes, fd, 0); err != nil {
		_ = unix.Munmap(placeholder)
		return nil, nil, fmt.Errorf("mapping overlap: %w", err)
	}

	unmap := func() error {
		return unix.Munmap(placeholder)
	}
	return placeholder, unmap, nil
}

// mmapFixed maps length bytes of fd at offset into the page range starting
// at addr, replacing whatever reservation (here, the PROT_NONE placeholder)
// currently occupies it. unix.Mmap always picks its own address, so the
// fixed-address case goes straight to the syscall.
func mmapFixed(addr uintptr, length, fd int, offset int64) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd),
		uintptr(offset),
	)
	if errno != 0 {
		return errno
	}
	return nil
}
