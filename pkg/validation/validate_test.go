// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertInvalidArgument(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	f := faults.From(err)
	assert.Equal(t, faults.KindInvalidArgument, f.Kind)
	assert.Contains(t, f.Message, field, "message must name the offending field")
}

func TestString(t *testing.T) {
	v, err := String("  hello  ", "name", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = String("   ", "name", 1, 10)
	assertInvalidArgument(t, err, "name")

	_, err = String("toolongvalue", "name", 1, 5)
	assertInvalidArgument(t, err, "name")

	// min defaults to 1
	_, err = String("", "name", 0, 10)
	assertInvalidArgument(t, err, "name")
}

func TestInteger(t *testing.T) {
	n, err := Integer("42", "count", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = Integer(float64(7), "count", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Integer(7.5, "count", 1, 100)
	assertInvalidArgument(t, err, "count")

	_, err = Integer("abc", "count", 1, 100)
	assertInvalidArgument(t, err, "count")

	_, err = Integer(0, "count", 1, 100)
	assertInvalidArgument(t, err, "count")

	_, err = Integer(101, "count", 1, 100)
	assertInvalidArgument(t, err, "count")
}

func TestList(t *testing.T) {
	got, err := List([]string{"a", "b"}, "targets", 1, 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = List([]string{}, "targets", 1, 5)
	assertInvalidArgument(t, err, "targets")

	_, err = List([]int{1, 2, 3}, "targets", 1, 2)
	assertInvalidArgument(t, err, "targets")
}

func TestMapping(t *testing.T) {
	m := map[string]any{"search_type": "address", "params": map[string]any{}}
	_, err := Mapping(m, "request", "search_type", "params")
	require.NoError(t, err)

	_, err = Mapping(m, "request", "search_type", "borough")
	assertInvalidArgument(t, err, "request")

	_, err = Mapping(nil, "request")
	assertInvalidArgument(t, err, "request")
}

func TestEmail(t *testing.T) {
	v, err := Email("analyst+fraud@example.co", "email")
	require.NoError(t, err)
	assert.Equal(t, "analyst+fraud@example.co", v)

	for _, bad := range []string{"no-at-sign", "x@y", "x@y.z", "@example.com", "user@.com"} {
		_, err := Email(bad, "email")
		assertInvalidArgument(t, err, "email")
	}
}

func TestPhone(t *testing.T) {
	v, err := Phone("(212) 555-0187", "phone")
	require.NoError(t, err)
	assert.Equal(t, "2125550187", v)

	_, err = Phone("555-0187", "phone")
	assertInvalidArgument(t, err, "phone")

	_, err = Phone("12345678901234567", "phone")
	assertInvalidArgument(t, err, "phone")
}

func TestLicenseNumber(t *testing.T) {
	v, err := LicenseNumber(" 1234567 ", "license_number")
	require.NoError(t, err)
	assert.Equal(t, "1234567", v)

	_, err = LicenseNumber("12345", "license_number")
	assertInvalidArgument(t, err, "license_number")
	assert.Contains(t, faults.From(err).Message, "5")

	_, err = LicenseNumber("123456789", "license_number")
	assertInvalidArgument(t, err, "license_number")

	_, err = LicenseNumber("12345ab", "license_number")
	assertInvalidArgument(t, err, "license_number")
}

func TestAddress(t *testing.T) {
	v, err := Address("350 Fifth Avenue, Manhattan", "address")
	require.NoError(t, err)
	assert.Equal(t, "350 Fifth Avenue, Manhattan", v)

	// "st" token via comma-separated word
	_, err = Address("1 Main St, Brooklyn NY", "address")
	require.NoError(t, err)

	_, err = Address("short", "address")
	assertInvalidArgument(t, err, "address")

	_, err = Address("this is a long value with no token at all", "address")
	assertInvalidArgument(t, err, "address")

	_, err = Address("10 Main Street "+strings.Repeat("x", 500), "address")
	assertInvalidArgument(t, err, "address")
}

func TestBorough(t *testing.T) {
	v, err := Borough("Staten Island", "borough")
	require.NoError(t, err)
	assert.Equal(t, "Staten Island", v)

	_, err = Borough("staten island", "borough")
	assertInvalidArgument(t, err, "borough")

	_, err = Borough("Jersey City", "borough")
	assertInvalidArgument(t, err, "borough")
}

func TestBlockLot(t *testing.T) {
	b, l, err := BlockLot(" 832 ", "61")
	require.NoError(t, err)
	assert.Equal(t, "832", b)
	assert.Equal(t, "61", l)

	_, _, err = BlockLot("83a", "61")
	assertInvalidArgument(t, err, "block")

	_, _, err = BlockLot("832", "6-1")
	assertInvalidArgument(t, err, "lot")
}

func TestUUID(t *testing.T) {
	v, err := UUID("550E8400-E29B-41D4-A716-446655440000", "id")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", v)

	_, err = UUID("not-a-uuid", "id")
	assertInvalidArgument(t, err, "id")

	_, err = UUID("550e8400e29b41d4a716446655440000", "id")
	assertInvalidArgument(t, err, "id")
}

func TestPagination(t *testing.T) {
	p, ps, err := Pagination(1, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, p)
	assert.Equal(t, 100, ps)

	_, _, err = Pagination(0, 10)
	assertInvalidArgument(t, err, "page")

	_, _, err = Pagination(10001, 10)
	assertInvalidArgument(t, err, "page")

	_, _, err = Pagination(1, 101)
	assertInvalidArgument(t, err, "page_size")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "scriptalert(1)/script", Sanitize(`<script>alert('1')</script>`))
	assert.Equal(t, "plain text", Sanitize("  plain text  "))
}

func TestSanitizeMapLeavesNumbersAlone(t *testing.T) {
	out := SanitizeMap(map[string]any{
		"name":  `Kett<ler> "Mgmt"`,
		"count": 42,
		"ratio": 0.5,
	})
	assert.Equal(t, "Kettler Mgmt", out["name"])
	assert.Equal(t, 42, out["count"])
	assert.Equal(t, 0.5, out["ratio"])
	assert.Nil(t, SanitizeMap(nil))
}
