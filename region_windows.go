//go:build windows

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

	"golang.org/x/sys/windows"
)

func systemPageSize() int {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	pageSize := int(info.PageSize)
	if alloc := int(info.AllocationGranularity); alloc > pageSize {
		pageSize = alloc
	}
	return pageSize
}

// mapRegion implements the construction algorithm of spec.md §4.1 on
// Windows, following VirtualAlloc2/CreateFileMapping/MapViewOfFile3 exactly
// as the source does: reserve one placeholder of regionBytes+overlapBytes,
// split it into two placeholders of regionBytes and overlapBytes via
// VirtualFree(MEM_PRESERVE_PLACEHOLDER), back both with the same
// pagefile-backed section, and replace each placeholder with a view of that
// section (MEM_REPLACE_PLACEHOLDER).
func mapRegion(regionBytes, overlapBytes int) ([]byte, func() error, error) {
	total := uintptr(regionBytes + overlapBytes)

	placeholder1, err := windows.VirtualAlloc2(
		0, nil, total,
		windows.MEM_RESERVE|windows.MEM_RESERVE_PLACEHOLDER,
		windows.PAGE_NOACCESS,
		nil, 0,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("VirtualAlloc2: %w", err)
	}

	// Split the placeholder into [0,regionBytes) and [regionBytes,total).
	if err := windows.VirtualFree(placeholder1, uintptr(regionBytes), windows.MEM_RELEASE|windows.MEM_PRESERVE_PLACEHOLDER); err != nil {
		_ = windows.VirtualFree(placeholder1, 0, windows.MEM_RELEASE)
		return nil, nil, fmt.Errorf("VirtualFree (split placeholder): %w", err)
	}
	placeholder2 := placeholder1 + uintptr(regionBytes)

	section, err := windows.CreateFileMapping(
		windows.InvalidHandle, nil,
		windows.PAGE_READWRITE,
		0, uint32(regionBytes), nil,
	)
	if err != nil {
		_ = windows.VirtualFree(placeholder1, 0, windows.MEM_RELEASE)
		_ = windows.VirtualFree(placeholder2, 0, windows.MEM_RELEASE)
		return nil, nil, fmt.Errorf("CreateFileMapping: %w", err)
	}
	defer windows.CloseHandle(section)

	view1, err := windows.MapViewOfFile3(
		section, 0, placeholder1,
		0, uintptr(regionBytes),
		windows.MEM_REPLACE_PLACEHOLDER,
		windows.PAGE_READWRITE,
		nil, 0,
	)
	if err != nil {
		_ = windows.VirtualFree(placeholder1, 0, windows.MEM_RELEASE)
		_ = windows.VirtualFree(placeholder2, 0, windows.MEM_RELEASE)
		return nil, nil, fmt.Errorf("MapViewOfFile3 (region): %w", err)
	}

	view2, err := windows.MapViewOfFile3(
		section, 0, placeholder2,
		0, uintptr(overlapBytes),
		windows.MEM_REPLACE_PLACEHOLDER,
		windows.PAGE_READWRITE,
		nil, 0,
	)
	if err != nil {
		_ = windows.UnmapViewOfFile(view1)
		_ = windows.VirtualFree(placeholder2, 0, windows.MEM_RELEASE)
		return nil, nil, fmt.Errorf("MapViewOfFile3 (overlap): %w", err)
	}

	mem := unsafe.Slice((*byte)(unsafe.Pointer(view1)), regionBytes+overlapBytes)

	unmap := func() error {
		if err := windows.UnmapViewOfFile(view1); err != nil {
			return fmt.Errorf("UnmapViewOfFile (region): %w", err)
		}
		if err := windows.UnmapViewOfFile(view2); err != nil {
			return fmt.Errorf("UnmapViewOfFile (overlap): %w", err)
		}
		return nil
	}
	return mem, unmap, nil
}
