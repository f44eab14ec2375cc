// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	"go.mongodb.org/mongo-driver/bson"
)

// Snapshot files are JSON, which runs larger than the stored form.
const backupExpansionFactor = 2

// headroomSampleSize is how many documents per collection feed the
// average-size estimate.
const headroomSampleSize = 10

// PreflightChecks verifies everything the run depends on before any data
// moves: configuration sanity, store connectivity, source collections,
// writable backup and report directories, and enough free space on the
// backup volume to hold the snapshot.
type PreflightChecks struct {
	Config *MigrationConfig
	Source db.Gateway
	Target db.Gateway

	// FreeSpace reports the free bytes on the volume holding a directory.
	// Left nil, the filesystem is probed directly.
	FreeSpace func(dir string) (uint64, error)
}

// Run performs all checks and reports every failure it finds rather than
// stopping at the first one.
func (p *PreflightChecks) Run(ctx context.Context) *report.MigrationResult {
	result := report.NewResult()
	start := time.Now()
	cfg := p.Config

	if cfg.SourceDatabase == "" {
		result.AddError("no source database configured")
	}
	if cfg.TargetDatabase == "" {
		result.AddError("no target database configured")
	}
	if cfg.SourceDatabase != "" && cfg.SourceDatabase == cfg.TargetDatabase {
		result.AddError("source and target database are both %v", cfg.SourceDatabase)
	}
	if cfg.BatchSize <= 0 {
		result.AddError("batch size must be positive, got %v", cfg.BatchSize)
	}
	if cfg.MaxFailureRate < 0 || cfg.MaxFailureRate >= 1 {
		result.AddError("max failure rate must be in [0, 1), got %v", cfg.MaxFailureRate)
	}
	if !result.Success {
		return result.Finish(start, "configuration is invalid")
	}

	if err := p.Source.Ping(ctx); err != nil {
		result.AddError("cannot reach source store: %v", err)
	}
	if err := p.Target.Ping(ctx); err != nil {
		result.AddError("cannot reach target store: %v", err)
	}
	if !result.Success {
		return result.Finish(start, "store connectivity check failed")
	}

	collections, err := p.Source.ListCollections(ctx, cfg.SourceDatabase)
	if err != nil {
		result.AddError("error listing collections in %v: %v", cfg.SourceDatabase, err)
		return result.Finish(start, "source inspection failed")
	}
	if len(collections) == 0 {
		result.AddError("source database %v has no collections", cfg.SourceDatabase)
	}
	for _, wanted := range cfg.Collections {
		if !contains(collections, wanted) {
			result.AddError("collection %v not found in source database %v", wanted, cfg.SourceDatabase)
		}
	}

	if cfg.BackupEnabled && !cfg.DryRun {
		if err := probeWritable(cfg.BackupDir); err != nil {
			result.AddError("backup directory %v is not writable: %v", cfg.BackupDir, err)
		} else {
			covered := collections
			if len(cfg.Collections) > 0 {
				covered = cfg.Collections
			}
			if err := p.checkHeadroom(ctx, covered); err != nil {
				result.AddError("%v", err)
			}
		}
	}
	if cfg.ReportDir != "" {
		if err := probeWritable(cfg.ReportDir); err != nil {
			result.AddError("report directory %v is not writable: %v", cfg.ReportDir, err)
		}
	}

	if !result.Success {
		return result.Finish(start, "pre-flight checks failed")
	}
	log.Logvf(log.Info, "pre-flight checks passed: %v source collections, stores reachable", len(collections))
	return result.Finish(start, "pre-flight checks passed")
}

// probeWritable proves a directory is writable by creating and removing a
// probe file in it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// checkHeadroom estimates the backup's size from document counts and a
// small size sample, then compares it against the free space on the
// backup volume. Running out of disk mid-snapshot would leave a backup
// that can never pass its integrity check.
func (p *PreflightChecks) checkHeadroom(ctx context.Context, collections []string) error {
	needed, err := p.estimateBackupBytes(ctx, collections)
	if err != nil {
		return fmt.Errorf("cannot estimate backup size: %v", err)
	}
	probe := p.FreeSpace
	if probe == nil {
		probe = freeSpace
	}
	free, err := probe(p.Config.BackupDir)
	if err != nil {
		return fmt.Errorf("cannot determine free space under %v: %v", p.Config.BackupDir, err)
	}
	if free < needed {
		return fmt.Errorf("insufficient disk headroom under %v: %v bytes free, backup needs about %v",
			p.Config.BackupDir, free, needed)
	}
	log.Logvf(log.DebugLow, "backup headroom ok: %v bytes free for an estimated %v", free, needed)
	return nil
}

func (p *PreflightChecks) estimateBackupBytes(ctx context.Context, collections []string) (uint64, error) {
	var total uint64
	for _, collection := range collections {
		count, err := p.Source.Count(ctx, p.Config.SourceDatabase, collection, nil)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			continue
		}
		avg, err := p.sampleAvgDocumentBytes(ctx, collection)
		if err != nil {
			return 0, err
		}
		total += uint64(count) * uint64(avg) * backupExpansionFactor
	}
	return total, nil
}

func (p *PreflightChecks) sampleAvgDocumentBytes(ctx context.Context, collection string) (int64, error) {
	cursor, err := p.Source.Find(ctx, p.Config.SourceDatabase, collection, nil, headroomSampleSize)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var sampled, byteTotal int64
	for sampled < headroomSampleSize && cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return 0, err
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return 0, err
		}
		sampled++
		byteTotal += int64(len(raw))
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}
	if sampled == 0 {
		return 0, nil
	}
	return byteTotal / sampled, nil
}

// freeSpace asks the filesystem how many bytes remain available on the
// volume holding dir.
func freeSpace(dir string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
