// go-spiipc
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-spiipc.
//
// go-spiipc is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-spiipc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-spiipc; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB devices that enumerate as serial ports but
// must never be probed as SPI bridges. Format: VID:PID in hexadecimal.
func DefaultBlocklist() []string {
	return []string{
		"1366:0105", // SEGGER J-Link CDC, probing resets the target
		"0483:374B", // ST-LINK/V2-1 virtual COM port
		"0D28:0204", // DAPLink CMSIS-DAP virtual COM port
	}
}

// IsBlocked checks if a USB device is in the blocklist
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = normalizeVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if normalizeVIDPID(blocked) == vidpid {
			return true
		}
	}
	return false
}

// FormatVIDPID joins a vendor and product ID as enumerators report them
// ("1a86", "0x5512", "5512") into the canonical "1A86:5512" form. It returns
// "" when either half is not hexadecimal.
func FormatVIDPID(vid, pid string) string {
	v, ok := parseHexID(vid)
	if !ok {
		return ""
	}
	p, ok := parseHexID(pid)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", v, p)
}

// ParseVIDPID extracts VID:PID from common USB descriptor formats:
// "VID:1234 PID:5678", "vendor=1234 product=5678", "USB VID_1234&PID_5678"
// and "1234:5678".
func ParseVIDPID(descriptor string) string {
	upper := strings.ToUpper(descriptor)

	vid := hexAfter(upper, "VID:", "VID_", "VID=", "VENDOR=")
	pid := hexAfter(upper, "PID:", "PID_", "PID=", "PRODUCT=")
	if vid != "" && pid != "" {
		return FormatVIDPID(vid, pid)
	}

	if parts := strings.Split(strings.TrimSpace(upper), ":"); len(parts) == 2 {
		return FormatVIDPID(parts[0], parts[1])
	}
	return ""
}

func normalizeVIDPID(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ""
	}
	return FormatVIDPID(parts[0], parts[1])
}

func parseHexID(s string) (uint16, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > 4 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// hexAfter returns the hex digits following the first marker found
func hexAfter(s string, markers ...string) string {
	for _, m := range markers {
		if idx := strings.Index(s, m); idx >= 0 {
			return extractHex(s[idx+len(m):])
		}
	}
	return ""
}

// extractHex extracts the first run of hex digits from a string
func extractHex(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			_, _ = result.WriteRune(r)
		} else if result.Len() > 0 {
			break
		}
	}
	return result.String()
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths after
// cleaning; comparison is case-insensitive for Windows port names.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath != "" && normalizedPath(ignorePath) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
