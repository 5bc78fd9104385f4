// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package util

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32 computes the Castagnoli CRC32 of the given data.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// Magic FNV Base constant as suitable for a FNV-64 hash.
const fnvBase = uint64(14695981039346656037)
const fnvPrime = 1099511628211

// FNV64Init returns the initial state of an FNV-1 64 bit hash.
func FNV64Init() uint64 {
	return fnvBase
}

// FNV64AddToHash folds c into the running hash s0.
func FNV64AddToHash(s0 uint64, c int32) uint64 {
	s0 *= fnvPrime
	s0 ^= uint64(c)
	return s0
}

// FNV64String hashes every byte of s. The result only depends on s, so it
// is stable across processes and restarts.
func FNV64String(s string) uint64 {
	h := FNV64Init()
	for i := 0; i < len(s); i++ {
		h = FNV64AddToHash(h, int32(s[i]))
	}
	return h
}
