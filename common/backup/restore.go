// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	"github.com/advisorhub/advisor-tools/common/transport"
	"github.com/pkg/errors"
)

// Restorer rebuilds a target database from a verified backup manifest.
// Restoring is idempotent: running it twice against an unchanged backup
// restores the same document set.
type Restorer struct {
	Gateway        db.Gateway
	BackupPath     string
	TargetDatabase string
	BatchSize      int
}

// Rollback restores every collection recorded in the manifest. A missing
// manifest fails immediately; a hash mismatch fails closed for that
// collection and is reported as a critical finding instead of restoring
// corrupted data.
func (r *Restorer) Rollback(ctx context.Context) *report.MigrationResult {
	result := report.NewResult()
	start := time.Now()

	meta, err := LoadMetadata(r.BackupPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.AddError("no backup found at %v: missing %v", r.BackupPath, MetadataFilename)
		} else {
			result.AddError("error reading backup metadata: %v", err)
		}
		return result.Finish(start, "rollback failed: no usable backup")
	}

	log.Logvf(log.Always, "rolling back %v from backup of %v taken at %v",
		r.TargetDatabase, meta.SourceDatabase, meta.Timestamp.Format(time.RFC3339))

	collections := make([]string, 0, len(meta.Collections))
	for name := range meta.Collections {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	for _, collection := range collections {
		collMeta := meta.Collections[collection]
		restored, err := r.restoreCollection(ctx, collection, collMeta)
		if err != nil {
			result.AddError("collection %v: %v", collection, err)
			continue
		}
		result.RecordsProcessed += collMeta.DocumentCount
		result.RecordsMigrated += restored
		if restored != collMeta.DocumentCount {
			result.AddWarning("collection %v: restored %v of %v documents",
				collection, restored, collMeta.DocumentCount)
		}
	}

	if !result.Success {
		return result.Finish(start, "rollback completed with errors")
	}
	return result.Finish(start, "restored %v records into %v collections",
		result.RecordsMigrated, len(collections))
}

func (r *Restorer) restoreCollection(ctx context.Context, collection string, meta CollectionMetadata) (int64, error) {
	path := filepath.Join(r.BackupPath, filepath.Base(meta.FilePath))

	// Verify integrity before touching the target. A tampered or truncated
	// backup file must never be restored.
	hash, err := HashFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "error hashing backup file %v", path)
	}
	if hash != meta.FileHash {
		return 0, errors.Errorf(
			"integrity check failed for %v: stored hash %v does not match computed hash %v",
			path, meta.FileHash, hash)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	docs, err := transport.ReadDocuments(file)
	if err != nil {
		return 0, err
	}

	// Clear-then-bulk-insert so the restore is atomic from the caller's
	// point of view.
	if _, err := r.Gateway.DeleteMany(ctx, r.TargetDatabase, collection, nil); err != nil {
		return 0, errors.Wrapf(err, "error clearing target collection %v", collection)
	}

	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	bulk := db.NewBufferedBulkInserter(r.Gateway, r.TargetDatabase, collection, batchSize)
	for _, doc := range docs {
		if err := bulk.Insert(ctx, doc); err != nil {
			return bulk.Inserted(), err
		}
	}
	if err := bulk.Flush(ctx); err != nil {
		return bulk.Inserted(), err
	}

	for _, index := range meta.Indexes {
		if err := r.Gateway.CreateIndex(ctx, r.TargetDatabase, collection, index); err != nil {
			log.Logvf(log.Always, "could not recreate index %v on %v: %v", index.Name, collection, err)
		}
	}

	return bulk.Inserted(), nil
}
