// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	"github.com/advisorhub/advisor-tools/common/transport"
	"github.com/advisorhub/advisor-tools/common/util"
	"go.mongodb.org/mongo-driver/bson"
)

// Writer snapshots every collection of the source database into one JSON
// file per collection, then writes the manifest last.
type Writer struct {
	Gateway        db.Gateway
	SourceDatabase string
	Dir            string
	BatchSize      int32

	// Enabled false turns CreateBackup into a successful no-op.
	Enabled bool
}

// CreateBackup streams every source collection to disk. Failure of any
// single collection's write aborts the whole backup; partial files are left
// in place for forensic inspection but no manifest is written, so they are
// never treated as usable by a restore.
func (bw *Writer) CreateBackup(ctx context.Context) *report.MigrationResult {
	result := report.NewResult()
	if !bw.Enabled {
		result.Message = "backup disabled, skipping"
		return result
	}
	start := time.Now()

	if err := os.MkdirAll(bw.Dir, 0755); err != nil {
		result.AddError("error creating backup directory %v: %v", bw.Dir, err)
		return result.Finish(start, "backup failed")
	}

	collections, err := bw.Gateway.ListCollections(ctx, bw.SourceDatabase)
	if err != nil {
		result.AddError("error listing collections in %v: %v", bw.SourceDatabase, err)
		return result.Finish(start, "backup failed")
	}
	sort.Strings(collections)

	meta := &Metadata{
		Timestamp:      start,
		SourceDatabase: bw.SourceDatabase,
		Collections:    make(map[string]CollectionMetadata),
	}

	for _, collection := range collections {
		collMeta, err := bw.backupCollection(ctx, collection)
		if err != nil {
			result.AddError("error backing up collection %v: %v", collection, err)
			return result.Finish(start, "backup failed on collection %v", collection)
		}
		meta.Collections[collection] = *collMeta
		meta.TotalRecords += collMeta.DocumentCount
		log.Logvf(log.Info, "backed up %v %v from %v",
			collMeta.DocumentCount,
			util.Pluralize(int(collMeta.DocumentCount), "document", "documents"),
			collection)
	}

	// The manifest is written last: its presence certifies the snapshot.
	if err := WriteMetadata(bw.Dir, meta); err != nil {
		result.AddError("%v", err)
		return result.Finish(start, "backup failed")
	}

	result.RecordsProcessed = meta.TotalRecords
	result.RecordsMigrated = meta.TotalRecords
	return result.Finish(start, "backed up %v records from %v collections",
		meta.TotalRecords, len(collections))
}

func (bw *Writer) backupCollection(ctx context.Context, collection string) (*CollectionMetadata, error) {
	path := filepath.Join(bw.Dir, collection+".json")
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := sha256.New()
	fw := transport.NewFileWriter(io.MultiWriter(file, hasher))

	cursor, err := bw.Gateway.Find(ctx, bw.SourceDatabase, collection, nil, bw.BatchSize)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var doc bson.D
	for cursor.Next(ctx) {
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if err := fw.WriteDocument(doc); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, err
	}

	indexes, err := bw.Gateway.ListIndexes(ctx, bw.SourceDatabase, collection)
	if err != nil {
		return nil, fmt.Errorf("error listing indexes: %v", err)
	}

	return &CollectionMetadata{
		DocumentCount: fw.Count(),
		FilePath:      path,
		FileHash:      hex.EncodeToString(hasher.Sum(nil)),
		BackupTime:    time.Now(),
		Indexes:       indexes,
	}, nil
}
