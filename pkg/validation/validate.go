// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation is the shared input-validation kit.
//
// # Description
//
// Every inbound field of every service passes through one of these pure
// functions before domain work starts. Each function returns the validated
// (and where applicable, normalized) value, or a faults.InvalidArgument whose
// message names the offending field. Nothing here performs I/O.
//
// Structural request-shape checks stay in gin's binding layer; the rules here
// are the domain rules (license formats, NYC boroughs, street tokens) that
// binding tags cannot express.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// validate is the shared rule engine for formats with well-known
// definitions (email); domain-specific formats keep explicit patterns.
var validate = validator.New()

var (
	phonePattern   = regexp.MustCompile(`^\d{10,15}$`)
	licensePattern = regexp.MustCompile(`^\d{6,8}$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
	uuidPattern    = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// streetTokens is the fixed dictionary of street-type tokens an address must
// contain at least one of.
var streetTokens = []string{
	"street", "st", "avenue", "ave", "road", "rd", "drive", "dr",
	"lane", "ln", "way", "blvd", "boulevard", "place", "pl", "court", "ct",
}

// Boroughs is the closed set of valid NYC boroughs.
var Boroughs = []string{"Manhattan", "Brooklyn", "Queens", "Bronx", "Staten Island"}

// String validates that value trimmed has length in [minLen, maxLen] and
// returns the trimmed value. A minLen of 0 is treated as 1: empty strings
// are never valid here.
func String(value, field string, minLen, maxLen int) (string, error) {
	if minLen < 1 {
		minLen = 1
	}
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < minLen {
		return "", faults.InvalidArgument(field, fmt.Sprintf("must be at least %d characters", minLen))
	}
	if len(trimmed) > maxLen {
		return "", faults.InvalidArgument(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	return trimmed, nil
}

// Integer parses value (int, float, or numeric string) and checks the
// inclusive [min, max] bounds.
func Integer(value any, field string, min, max int) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, faults.InvalidArgument(field, "must be an integer")
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, faults.InvalidArgument(field, "must be an integer")
		}
		n = parsed
	default:
		return 0, faults.InvalidArgument(field, "must be an integer")
	}

	if n < min {
		return 0, faults.InvalidArgument(field, fmt.Sprintf("must be at least %d", min))
	}
	if n > max {
		return 0, faults.InvalidArgument(field, fmt.Sprintf("must be at most %d", max))
	}
	return n, nil
}

// List checks that the slice length is in [minItems, maxItems]. Element
// types are not checked here.
func List[T any](value []T, field string, minItems, maxItems int) ([]T, error) {
	if len(value) < minItems {
		return nil, faults.InvalidArgument(field, fmt.Sprintf("must have at least %d items", minItems))
	}
	if len(value) > maxItems {
		return nil, faults.InvalidArgument(field, fmt.Sprintf("must have at most %d items", maxItems))
	}
	return value, nil
}

// Mapping checks that every required key is present in the map.
func Mapping(value map[string]any, field string, requiredKeys ...string) (map[string]any, error) {
	if value == nil {
		return nil, faults.InvalidArgument(field, "must be an object")
	}
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := value[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, faults.InvalidArgument(field, "missing required keys: "+strings.Join(missing, ", "))
	}
	return value, nil
}

// Email validates against the RFC-5322 rules and returns the trimmed value.
func Email(value, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if err := validate.Var(trimmed, "required,email"); err != nil {
		return "", faults.InvalidArgument(field, "invalid email format")
	}
	return trimmed, nil
}

// Phone strips spaces, dashes, and parentheses, then requires 10-15 digits.
// Returns the cleaned digit string.
func Phone(value, field string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, value)
	if !phonePattern.MatchString(cleaned) {
		return "", faults.InvalidArgument(field, "must be 10-15 digits after removing formatting")
	}
	return cleaned, nil
}

// LicenseNumber requires 6-8 digits after trimming.
func LicenseNumber(value, field string) (string, error) {
	cleaned := strings.TrimSpace(value)
	if !licensePattern.MatchString(cleaned) {
		return "", faults.InvalidArgument(field,
			fmt.Sprintf("must be 6-8 digits, got %d characters", len(cleaned)))
	}
	return cleaned, nil
}

// Address requires a trimmed length of 10-500 and at least one street-type
// token from the fixed dictionary.
func Address(value, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 10 {
		return "", faults.InvalidArgument(field, "address too short, must be at least 10 characters")
	}
	if len(trimmed) > 500 {
		return "", faults.InvalidArgument(field, "address too long, must be at most 500 characters")
	}

	lower := strings.ToLower(trimmed)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '#'
	})
	for _, w := range words {
		for _, tok := range streetTokens {
			if w == tok {
				return trimmed, nil
			}
		}
	}
	return "", faults.InvalidArgument(field, "must include a street name (street, avenue, road, ...)")
}

// Borough requires an exact match against the five NYC boroughs.
func Borough(value, field string) (string, error) {
	for _, b := range Boroughs {
		if value == b {
			return value, nil
		}
	}
	return "", faults.InvalidArgument(field, "must be one of: "+strings.Join(Boroughs, ", "))
}

// BlockLot validates that block and lot are each purely numeric after
// trimming, and returns the cleaned pair.
func BlockLot(block, lot string) (string, string, error) {
	blockClean := strings.TrimSpace(block)
	lotClean := strings.TrimSpace(lot)

	if !numericPattern.MatchString(blockClean) {
		return "", "", faults.InvalidArgument("block", "must be numeric")
	}
	if !numericPattern.MatchString(lotClean) {
		return "", "", faults.InvalidArgument("lot", "must be numeric")
	}
	return blockClean, lotClean, nil
}

// UUID requires canonical 8-4-4-4-12 lowercase hex and returns the
// lowercased value.
func UUID(value, field string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(value))
	if !uuidPattern.MatchString(lower) {
		return "", faults.InvalidArgument(field, "must be a canonical UUID")
	}
	return lower, nil
}

// Pagination validates page in [1, 10000] and pageSize in [1, 100].
func Pagination(page, pageSize int) (int, int, error) {
	p, err := Integer(page, "page", 1, 10000)
	if err != nil {
		return 0, 0, err
	}
	ps, err := Integer(pageSize, "page_size", 1, 100)
	if err != nil {
		return 0, 0, err
	}
	return p, ps, nil
}
