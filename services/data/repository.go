// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Repository
// =============================================================================

// Repository is the firm store.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns the firm by id, or NotFound.
	Get(ctx context.Context, firmID string) (Firm, error)

	// List returns firms matching filter, ordered by FirmID ascending.
	List(ctx context.Context, filter Filter) ([]Firm, error)

	// Put writes a firm under its FirmID, creating or replacing.
	Put(ctx context.Context, firm Firm) error

	// Delete removes the firm. Deleting an absent id returns NotFound so the
	// handler can report it; the store itself does not care.
	Delete(ctx context.Context, firmID string) error

	// Close releases the underlying store.
	Close() error
}

// keyPrefix namespaces firm records inside the shared badger keyspace.
const keyPrefix = "firm/"

// badgerRepository stores firms as JSON values under "firm/<id>".
type badgerRepository struct {
	db *badger.DB
}

var _ Repository = (*badgerRepository)(nil)

// OpenRepository opens the badger-backed firm store at dir. An empty dir
// selects in-memory mode, used by tests and ephemeral deployments.
func OpenRepository(dir string) (Repository, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func (r *badgerRepository) Get(ctx context.Context, firmID string) (Firm, error) {
	if err := ctx.Err(); err != nil {
		return Firm{}, err
	}

	var firm Firm
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + firmID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &firm)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Firm{}, faults.NotFound("firm " + firmID)
	}
	if err != nil {
		return Firm{}, faults.Internal("reading firm", err)
	}
	return firm, nil
}

func (r *badgerRepository) List(ctx context.Context, filter Filter) ([]Firm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firms []Firm
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var firm Firm
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &firm)
			})
			if err != nil {
				return err
			}
			if matchesFilter(firm, filter) {
				firms = append(firms, firm)
			}
		}
		return nil
	})
	if err != nil {
		return nil, faults.Internal("listing firms", err)
	}

	// Badger iterates in key order already; keep the sort explicit in case
	// the backend changes.
	sort.Slice(firms, func(i, j int) bool { return firms[i].FirmID < firms[j].FirmID })
	return firms, nil
}

func (r *badgerRepository) Put(ctx context.Context, firm Firm) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(firm)
	if err != nil {
		return faults.Internal("encoding firm", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+firm.FirmID), value)
	})
	if err != nil {
		return faults.Internal("writing firm", err)
	}
	return nil
}

func (r *badgerRepository) Delete(ctx context.Context, firmID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		key := []byte(keyPrefix + firmID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return faults.NotFound("firm " + firmID)
	}
	if err != nil {
		return faults.Internal("deleting firm", err)
	}
	return nil
}

func (r *badgerRepository) Close() error { return r.db.Close() }

func matchesFilter(firm Firm, filter Filter) bool {
	if filter.PrincipalBroker != "" && firm.PrincipalBroker != filter.PrincipalBroker {
		return false
	}
	if filter.State != "" && firm.State != filter.State {
		return false
	}
	if filter.Address != "" &&
		!strings.Contains(strings.ToLower(firm.Address), strings.ToLower(filter.Address)) {
		return false
	}
	return true
}
