// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"context"
	"fmt"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	mapset "github.com/deckarep/golang-set/v2"
	"go.mongodb.org/mongo-driver/bson"
	tomb "gopkg.in/tomb.v2"
)

// number of documents the reader goroutine may run ahead of the writer
const insertBufferFactor = 16

// CollectionMigrator streams one collection through its transformer into
// the target database, gating the result on the configured maximum
// failure rate.
type CollectionMigrator struct {
	Config   *MigrationConfig
	Source   db.Gateway
	Target   db.Gateway
	Registry *Registry
	Schemas  map[string]*CollectionSchema
}

// MigrateCollection runs the transform-and-migrate pass for a single
// collection. Documents are read in source order; each one is transformed,
// shape-checked, and buffered for bulk insertion. Individual document
// failures are recorded and skipped, but when the failure rate exceeds
// the configured maximum the whole collection is marked failed.
func (m *CollectionMigrator) MigrateCollection(ctx context.Context, collection string) *report.MigrationResult {
	result := report.NewResult()
	start := time.Now()
	cfg := m.Config

	total, err := m.Source.Count(ctx, cfg.SourceDatabase, collection, nil)
	if err != nil {
		result.AddError("error counting %v.%v: %v", cfg.SourceDatabase, collection, err)
		return result.Finish(start, "migration of %v failed", collection)
	}
	log.Logvf(log.Info, "migrating %v documents from %v.%v", total, cfg.SourceDatabase, collection)

	existingIDs, err := m.loadExistingIDs(ctx, collection)
	if err != nil {
		result.AddError("error reading existing ids in %v.%v: %v", cfg.TargetDatabase, collection, err)
		return result.Finish(start, "migration of %v failed", collection)
	}

	transformer := m.Registry.Lookup(collection)
	schema := m.Schemas[collection]

	docChan := make(chan bson.D, insertBufferFactor)
	var reader tomb.Tomb
	reader.Go(func() error {
		defer close(docChan)
		cursor, err := m.Source.Find(ctx, cfg.SourceDatabase, collection, nil, int32(cfg.BatchSize))
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		for cursor.Next(ctx) {
			var doc bson.D
			if err := cursor.Decode(&doc); err != nil {
				return err
			}
			select {
			case docChan <- doc:
			case <-reader.Dying():
				return nil
			}
		}
		return cursor.Err()
	})

	bulk := db.NewBufferedBulkInserter(m.Target, cfg.TargetDatabase, collection, cfg.BatchSize)
	var processed, skipped, wouldWrite int64
	var fatal bool

	for doc := range docChan {
		processed++

		transformed, err := transformer(doc)
		if err != nil {
			docID, _ := documentID(doc)
			result.AddError("document %v: transform failed: %v", docID, err)
			continue
		}

		if cfg.ValidateOnMigrate {
			if issues := schema.Validate(transformed); len(issues) > 0 {
				for _, issue := range issues {
					result.AddError("document %v: %v", issue.DocumentID, issue.Message)
				}
				continue
			}
		}

		if existingIDs != nil {
			if raw, ok := getField(transformed, "_id"); ok && existingIDs.Contains(idKey(raw)) {
				skipped++
				continue
			}
		}

		if !cfg.PreserveIDs {
			transformed = removeField(transformed, "_id")
		}

		if cfg.DryRun {
			wouldWrite++
			continue
		}
		// duplicate-key and document-validation write errors are counted
		// against the failure rate but do not abort the batch; any other
		// insert error means a whole buffered batch was lost, so the
		// collection cannot be trusted and the run stops here
		if err := db.FilterError(false, bulk.Insert(ctx, transformed)); err != nil {
			result.AddError("error inserting into %v.%v: %v", cfg.TargetDatabase, collection, err)
			fatal = true
			break
		}
	}
	reader.Kill(nil)

	if err := db.FilterError(false, bulk.Flush(ctx)); err != nil {
		result.AddError("error flushing inserts into %v.%v: %v", cfg.TargetDatabase, collection, err)
		fatal = true
	}
	if err := reader.Wait(); err != nil {
		result.AddError("error reading %v.%v: %v", cfg.SourceDatabase, collection, err)
		fatal = true
	}

	result.RecordsProcessed = processed
	if cfg.DryRun {
		result.RecordsMigrated = wouldWrite
	} else {
		result.RecordsMigrated = bulk.Inserted()
	}
	result.RecordsFailed = processed - result.RecordsMigrated - skipped

	// Per-document failures do not fail the collection on their own; the
	// failure rate crossing the configured maximum does, as does any fatal
	// read or write error.
	result.Success = !fatal
	if rate := result.FailureRate(); rate > cfg.MaxFailureRate {
		result.AddError("failure rate %.2f%% exceeds the configured maximum %.2f%%",
			rate*100, cfg.MaxFailureRate*100)
	}

	message := fmt.Sprintf("migrated %v of %v documents from %v", result.RecordsMigrated, processed, collection)
	if skipped > 0 {
		message += fmt.Sprintf(" (%v already present, skipped)", skipped)
	}
	if cfg.DryRun {
		message += " (dry run)"
	}
	return result.Finish(start, "%v", message)
}

// loadExistingIDs collects the target collection's _id values so that
// already-migrated documents can be skipped. Returns nil when skipping is
// disabled.
func (m *CollectionMigrator) loadExistingIDs(ctx context.Context, collection string) (mapset.Set[string], error) {
	if !m.Config.SkipExisting {
		return nil, nil
	}
	ids := mapset.NewSet[string]()
	cursor, err := m.Target.Find(ctx, m.Config.TargetDatabase, collection, nil, int32(m.Config.BatchSize))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if raw, ok := getField(doc, "_id"); ok {
			ids.Add(idKey(raw))
		}
	}
	return ids, cursor.Err()
}

func idKey(raw interface{}) string {
	return fmt.Sprintf("%v", raw)
}
