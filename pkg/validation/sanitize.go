// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import "strings"

// dangerousChars are stripped from free-text fields before they reach a
// downstream service. Numeric values are never altered.
const dangerousChars = `<>"'`

// Sanitize strips angle brackets and quote characters from a free-text value
// and trims surrounding whitespace.
func Sanitize(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(dangerousChars, r) {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(cleaned)
}

// SanitizeMap returns a copy of m with every string value sanitized.
// Non-string values (numbers, bools, nested structures) pass through
// untouched.
func SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = Sanitize(s)
		} else {
			out[k] = v
		}
	}
	return out
}
