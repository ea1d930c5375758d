// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scraping

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
)

// failingScraper always fails transiently, to drive jobs into JobFailed.
type failingScraper struct{}

func (failingScraper) Scrape(context.Context, string, []string, map[string]any) (any, error) {
	return nil, faults.Transient("upstream blocked the crawler", nil)
}

func fastManager() *redundancy.Manager {
	return redundancy.NewManager(redundancy.ManagerConfig{
		DefaultRetry: redundancy.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
	})
}

func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.Manager == nil {
		cfg.Manager = fastManager()
	}
	svc, err := New(cfg)
	require.NoError(t, err)
	svc.Start(t.Context())
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

// awaitJob polls the status endpoint until the job leaves the queue.
func awaitJob(t *testing.T, svc Service, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		w := doJSON(t, svc, http.MethodGet, "/scrape/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		return job.Status == JobCompleted || job.Status == JobFailed
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestAirbnbScrapeCompletes(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/scrape/airbnb", gin.H{
		"targets": []string{"350 Fifth Avenue, Manhattan", "200 Second Street, Brooklyn"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status string `json:"status"`
		Job    Job    `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	require.NotEmpty(t, resp.Job.ID)

	job := awaitJob(t, svc, resp.Job.ID)
	require.Equal(t, JobCompleted, job.Status)
	require.NotNil(t, job.FinishedAt)

	listings, ok := job.Results.([]any)
	require.True(t, ok)
	assert.Len(t, listings, 2)
}

func TestListingsRejectBadAddress(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/scrape/vrbo", gin.H{
		"targets": []string{"too short"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "targets[0]")
}

func TestListingsRejectEmptyTargets(t *testing.T) {
	svc := newTestService(t, Config{})
	w := doJSON(t, svc, http.MethodPost, "/scrape/front", gin.H{"targets": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "targets")
}

func TestACRISSearchTypeClosedSet(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/scrape/acris", gin.H{
		"search_type": "plaza",
		"params":      gin.H{"borough": "Queens"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "search_type")

	w = doJSON(t, svc, http.MethodPost, "/scrape/acris", gin.H{
		"search_type": "block-lot",
		"params":      gin.H{"borough": "Queens", "block": "123", "lot": "45"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	job := awaitJob(t, svc, resp.Job.ID)
	assert.Equal(t, JobCompleted, job.Status)
}

func TestFailingScrapeMarksJobFailed(t *testing.T) {
	svc := newTestService(t, Config{Scraper: failingScraper{}})

	w := doJSON(t, svc, http.MethodPost, "/scrape/airbnb", gin.H{
		"targets": []string{"350 Fifth Avenue, Manhattan"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Job Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	job := awaitJob(t, svc, resp.Job.ID)
	assert.Equal(t, JobFailed, job.Status)
	assert.Contains(t, job.Error, "crawler")
}

func TestJobNotFound(t *testing.T) {
	svc := newTestService(t, Config{})
	w := doJSON(t, svc, http.MethodGet, "/scrape/jobs/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueBacklogBound(t *testing.T) {
	q := NewQueue(1, 1, func(context.Context, *Job) (any, error) { return nil, nil })
	// No workers started: the single slot fills, the next enqueue refuses.
	_, err := q.Enqueue("airbnb", []string{"x"}, nil)
	require.NoError(t, err)
	_, err = q.Enqueue("airbnb", []string{"y"}, nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
}
