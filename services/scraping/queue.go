// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scraping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Jobs
// =============================================================================

// JobStatus is a queued scrape's lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one unit of scraping work. A job is immutable once enqueued
// except for its status, results, and error, which the worker owns.
type Job struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Targets    []string       `json:"targets,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Status     JobStatus      `json:"status"`
	Results    any            `json:"results,omitempty"`
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// =============================================================================
// Queue
// =============================================================================

// Queue is the local FIFO work queue: jobs are picked up in order by a
// bounded worker pool. It is in-process only; a crash loses queued work.
//
// # Thread Safety
//
// Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending chan string

	workers int
	run     func(ctx context.Context, job *Job) (any, error)
}

// NewQueue creates a queue processing jobs with fn across workers
// goroutines. workers < 1 selects 2; capacity bounds the backlog.
func NewQueue(workers, capacity int, fn func(ctx context.Context, job *Job) (any, error)) *Queue {
	if workers < 1 {
		workers = 2
	}
	if capacity < 1 {
		capacity = 256
	}
	return &Queue{
		jobs:    make(map[string]*Job),
		pending: make(chan string, capacity),
		workers: workers,
		run:     fn,
	}
}

// Start launches the worker pool; workers exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		go q.work(ctx)
	}
}

// Enqueue adds a job and returns its snapshot, or Transient when the
// backlog is full.
func (q *Queue) Enqueue(kind string, targets []string, params map[string]any) (Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Targets:    targets,
		Params:     params,
		Status:     JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return *job, nil
	default:
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return Job{}, faults.Transient("scrape queue full", nil)
	}
}

// Get returns a snapshot of the job, or NotFound.
func (q *Queue) Get(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, faults.NotFound("job " + id)
	}
	return *job, nil
}

// Len reports queued-but-unstarted jobs.
func (q *Queue) Len() int { return len(q.pending) }

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			q.process(ctx, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = JobRunning
	q.mu.Unlock()

	results, err := q.run(ctx, job)

	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = faults.From(err).Message
		slog.Warn("scrape job failed", "job", job.ID, "kind", job.Kind, "error", err.Error())
		return
	}
	job.Status = JobCompleted
	job.Results = results
}
