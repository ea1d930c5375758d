// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"sort"
	"strings"

	"github.com/AleutianAI/RecordFabric/pkg/validation"
	"github.com/AleutianAI/RecordFabric/services/data"
)

// =============================================================================
// Result Types
// =============================================================================

// Cluster groups firms sharing one key (an address or a broker name).
type Cluster struct {
	Key   string   `json:"key"`
	Firms []string `json:"firms"`
}

// Connection is one edge between two firms and the attribute linking them.
type Connection struct {
	FirmA string `json:"firm_a"`
	FirmB string `json:"firm_b"`
	Via   string `json:"via"`
	Value string `json:"value"`
}

// Violation is one validation-kit finding against a stored firm.
type Violation struct {
	FirmID string `json:"firm_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FraudReport is the fraud-pattern summary.
type FraudReport struct {
	SharedAddresses   []Cluster `json:"shared_addresses"`
	DuplicateLicenses []Cluster `json:"duplicate_licenses"`
	MissingLicenses   []string  `json:"missing_licenses"`
	FirmsAnalyzed     int       `json:"firms_analyzed"`
}

// =============================================================================
// Analyzer
// =============================================================================

// Analyzer computes pattern reports over a firm corpus. All methods are
// pure over their input slice.
type Analyzer struct {
	// MinClusterSize is the smallest group reported; below 2 means 2.
	MinClusterSize int
}

func (a Analyzer) minSize() int {
	if a.MinClusterSize < 2 {
		return 2
	}
	return a.MinClusterSize
}

// FraudPatterns flags shared addresses, duplicate license numbers, and
// firms operating without a license on file.
func (a Analyzer) FraudPatterns(firms []data.Firm) FraudReport {
	report := FraudReport{FirmsAnalyzed: len(firms)}

	report.SharedAddresses = clustersBy(firms, a.minSize(), func(f data.Firm) string {
		return normalizeKey(f.Address)
	})
	report.DuplicateLicenses = clustersBy(firms, a.minSize(), func(f data.Firm) string {
		return f.LicenseNumber
	})
	for _, f := range firms {
		if f.LicenseNumber == "" {
			report.MissingLicenses = append(report.MissingLicenses, f.FirmID)
		}
	}
	sort.Strings(report.MissingLicenses)
	return report
}

// NexusPatterns groups firms by principal broker; a broker steering
// several firms is the investigation's primary nexus signal.
func (a Analyzer) NexusPatterns(firms []data.Firm) []Cluster {
	return clustersBy(firms, a.minSize(), func(f data.Firm) string {
		return normalizeKey(f.PrincipalBroker)
	})
}

// Connections lists every firm pair linked by a shared address or broker.
func (a Analyzer) Connections(firms []data.Firm) []Connection {
	var edges []Connection
	edges = append(edges, edgesBy(firms, "address", func(f data.Firm) string {
		return normalizeKey(f.Address)
	})...)
	edges = append(edges, edgesBy(firms, "principal_broker", func(f data.Firm) string {
		return normalizeKey(f.PrincipalBroker)
	})...)

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FirmA != edges[j].FirmA {
			return edges[i].FirmA < edges[j].FirmA
		}
		if edges[i].FirmB != edges[j].FirmB {
			return edges[i].FirmB < edges[j].FirmB
		}
		return edges[i].Via < edges[j].Via
	})
	return edges
}

// Violations runs the validation kit over every stored firm and reports
// each field that no longer passes.
func (a Analyzer) Violations(firms []data.Firm) []Violation {
	var out []Violation
	record := func(firmID, field string, err error) {
		if err != nil {
			out = append(out, Violation{FirmID: firmID, Field: field, Reason: err.Error()})
		}
	}

	for _, f := range firms {
		if f.LicenseNumber != "" {
			_, err := validation.LicenseNumber(f.LicenseNumber, "license_number")
			record(f.FirmID, "license_number", err)
		}
		if f.Address != "" {
			_, err := validation.Address(f.Address, "address")
			record(f.FirmID, "address", err)
		}
		if f.Email != "" {
			_, err := validation.Email(f.Email, "email")
			record(f.FirmID, "email", err)
		}
		if f.Phone != "" {
			_, err := validation.Phone(f.Phone, "phone")
			record(f.FirmID, "phone", err)
		}
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

// clustersBy groups firms by key(f), dropping empty keys and groups below
// minSize, ordered by key.
func clustersBy(firms []data.Firm, minSize int, key func(data.Firm) string) []Cluster {
	groups := make(map[string][]string)
	for _, f := range firms {
		k := key(f)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], f.FirmID)
	}

	var clusters []Cluster
	for k, ids := range groups {
		if len(ids) < minSize {
			continue
		}
		sort.Strings(ids)
		clusters = append(clusters, Cluster{Key: k, Firms: ids})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Key < clusters[j].Key })
	return clusters
}

// edgesBy emits one edge per firm pair sharing a non-empty key.
func edgesBy(firms []data.Firm, via string, key func(data.Firm) string) []Connection {
	groups := make(map[string][]data.Firm)
	for _, f := range firms {
		if k := key(f); k != "" {
			groups[k] = append(groups[k], f)
		}
	}

	var edges []Connection
	for k, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].FirmID < members[j].FirmID })
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				edges = append(edges, Connection{
					FirmA: members[i].FirmID,
					FirmB: members[j].FirmID,
					Via:   via,
					Value: k,
				})
			}
		}
	}
	return edges
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
