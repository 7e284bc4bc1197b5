// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages, such as
// the 1-wire CRC8 used to validate ROM codes.
package common

// CRC8 calculates the Dallas/Maxim 1-wire CRC8 of the byte slice parameter.
//
// The polynomial is x⁸+x⁵+x⁴+1 in reflected form (0x8C), the register starts
// at zero and bytes are shifted in least significant bit first, the same
// order the bits travel on the wire.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for range 8 {
			mix := (crc ^ val) & 1
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8c
			}
			val >>= 1
		}
	}
	return crc
}

// CheckCRC reports whether the last byte of the slice is the CRC8 of the
// bytes preceding it. It returns false for an empty slice.
func CheckCRC(bytes []byte) bool {
	if len(bytes) == 0 {
		return false
	}
	return CRC8(bytes[:len(bytes)-1]) == bytes[len(bytes)-1]
}
