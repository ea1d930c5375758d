// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package data

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func doJSON(t *testing.T, svc Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func seedFirm(t *testing.T, svc Service, id, name, address string, extra gin.H) {
	t.Helper()
	body := gin.H{"firm_id": id, "firm_name": name, "address": address}
	for k, v := range extra {
		body[k] = v
	}
	w := doJSON(t, svc, http.MethodPost, "/data/firms", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCreateGetDeleteRoundTrip(t *testing.T) {
	svc := newTestService(t)

	seedFirm(t, svc, "f-1", "Acme Realty LLC", "350 Fifth Avenue, Manhattan", gin.H{
		"license_number": "1234567",
		"email":          "broker@acme.com",
	})

	w := doJSON(t, svc, http.MethodGet, "/data/firms/f-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Firm Firm `json:"firm"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Acme Realty LLC", resp.Firm.FirmName)
	assert.Equal(t, "1234567", resp.Firm.LicenseNumber)
	assert.False(t, resp.Firm.CreatedAt.IsZero())

	w = doJSON(t, svc, http.MethodDelete, "/data/firms/f-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, svc, http.MethodGet, "/data/firms/f-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NotFound")
}

func TestCreateDuplicateConflicts(t *testing.T) {
	svc := newTestService(t)
	seedFirm(t, svc, "f-1", "Acme Realty LLC", "350 Fifth Avenue, Manhattan", nil)

	w := doJSON(t, svc, http.MethodPost, "/data/firms", gin.H{
		"firm_id":   "f-1",
		"firm_name": "Other Firm",
		"address":   "1 Other Street, Queens",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ConfigConflict")
}

func TestCreateValidatesFields(t *testing.T) {
	svc := newTestService(t)

	w := doJSON(t, svc, http.MethodPost, "/data/firms", gin.H{
		"firm_id":   "f-2",
		"firm_name": "Bad License Firm",
		"address":   "350 Fifth Avenue, Manhattan",
		// Five digits: below the 6-8 digit rule.
		"license_number": "12345",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "license_number")

	w = doJSON(t, svc, http.MethodPost, "/data/firms", gin.H{
		"firm_id":   "f-3",
		"firm_name": "No Street Firm",
		"address":   "nowhere in particular at all",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "address")
}

func TestUpdateMergesFields(t *testing.T) {
	svc := newTestService(t)
	seedFirm(t, svc, "f-1", "Acme Realty LLC", "350 Fifth Avenue, Manhattan", gin.H{
		"principal_broker": "J. Doe",
	})

	w := doJSON(t, svc, http.MethodPut, "/data/firms/f-1", gin.H{
		"firm_name": "Acme Realty Group LLC",
		"metadata":  gin.H{"source": "dos<script>"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Firm Firm `json:"firm"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Acme Realty Group LLC", resp.Firm.FirmName)
	assert.Equal(t, "J. Doe", resp.Firm.PrincipalBroker, "unspecified fields survive")
	assert.Equal(t, "dosscript", resp.Firm.Metadata["source"], "free text sanitized")
}

func TestUpdateMissingFirm(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodPut, "/data/firms/ghost", gin.H{"firm_name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFiltersAndPagination(t *testing.T) {
	svc := newTestService(t)
	seedFirm(t, svc, "f-1", "Alpha Realty", "100 First Avenue, Manhattan", gin.H{
		"principal_broker": "J. Doe", "state": "NY",
	})
	seedFirm(t, svc, "f-2", "Beta Realty", "200 Second Street, Brooklyn", gin.H{
		"principal_broker": "J. Doe", "state": "NY",
	})
	seedFirm(t, svc, "f-3", "Gamma Realty", "300 Third Road, Newark", gin.H{
		"principal_broker": "K. Roe", "state": "NJ",
	})

	var resp struct {
		Firms []Firm `json:"firms"`
		Count int    `json:"count"`
		Total int    `json:"total"`
	}

	w := doJSON(t, svc, http.MethodGet, "/data/firms?principal_broker=J.%20Doe", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)

	w = doJSON(t, svc, http.MethodGet, "/data/firms?state=NJ", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "f-3", resp.Firms[0].FirmID)

	// Address filter is a case-insensitive substring match.
	w = doJSON(t, svc, http.MethodGet, "/data/firms?address=second+street", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "f-2", resp.Firms[0].FirmID)

	// Page two of size one: firms are ordered by id.
	w = doJSON(t, svc, http.MethodGet, "/data/firms?page=2&page_size=1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "f-2", resp.Firms[0].FirmID)
}

func TestListRejectsBadPagination(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodGet, "/data/firms?page=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "page")
}

func TestDeleteMissingFirm(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodDelete, "/data/firms/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
