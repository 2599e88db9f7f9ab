// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists completed verification reports in BadgerDB.
//
// BadgerDB gives us a zero-dependency embedded store with low-latency
// access, which fits a single-node verifier: reports are written once at
// the end of a run and read back by ID over HTTP.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// ErrNotFound is returned by Get when no report exists under the ID.
var ErrNotFound = errors.New("report not found")

const keyPrefix = "report:"

// ReportStore is a BadgerDB-backed report archive.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// isolation.
type ReportStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Options configures a ReportStore.
type Options struct {
	// Dir is the database directory, created if absent. Empty means
	// in-memory, which loses data on Close and suits tests.
	Dir string

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// Open opens or creates the report database.
func Open(opts Options) (*ReportStore, error) {
	var bopts badger.Options
	if opts.Dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStore{db: db, logger: logger}, nil
}

// Put persists the report and returns its ID, assigning a fresh UUID when
// the report does not carry one. The stored value is the report's JSON.
func (s *ReportStore) Put(report *datatypes.Report) (string, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	value, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report %s: %w", report.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+report.ID), value)
	})
	if err != nil {
		return "", fmt.Errorf("store report %s: %w", report.ID, err)
	}
	return report.ID, nil
}

// Get loads a report by ID. Missing IDs return ErrNotFound.
func (s *ReportStore) Get(id string) (*datatypes.Report, error) {
	var report datatypes.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &report)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	return &report, nil
}

// Close flushes and closes the underlying database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
