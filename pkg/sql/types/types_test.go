// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizes(t *testing.T) {
	expected := map[T]int{
		Bool: 1, Int8: 1, Int16: 2, Int32: 4, Int64: 8,
		Float: 4, Double: 8, Timestamp: 8, String: 12,
	}
	for _, typ := range All {
		require.Equal(t, expected[typ], typ.Size(), typ.String())
		require.Equal(t, typ == String, typ.IsVarLen())
	}
	require.Equal(t, 0, Unknown.Size())
	require.False(t, Unknown.Valid())
}

func TestParse(t *testing.T) {
	for _, typ := range All {
		parsed, err := Parse(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
	parsed, err := Parse(" BIGINT ")
	require.NoError(t, err)
	require.Equal(t, Int64, parsed)

	_, err = Parse("decimal")
	require.ErrorContains(t, err, `unknown slot type "decimal"`)
}
