// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package data is the data service: the firm-of-record repository and its
// CRUD surface, backed by an embedded BadgerDB.
package data

import "time"

// Firm is one firm of record. FirmID is the repository key.
type Firm struct {
	FirmID          string         `json:"firm_id"`
	FirmName        string         `json:"firm_name"`
	Address         string         `json:"address"`
	PrincipalBroker string         `json:"principal_broker,omitempty"`
	LicenseNumber   string         `json:"license_number,omitempty"`
	State           string         `json:"state,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Email           string         `json:"email,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter selects firms on exact broker/state and substring address match.
// Zero-valued fields are ignored.
type Filter struct {
	PrincipalBroker string
	Address         string
	State           string
}
