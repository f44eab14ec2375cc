// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package datamigrate implements the production data migration pipeline:
// pre-flight checks, backup, per-collection transform-and-migrate with
// failure-rate gating, post-migration validation and reporting, and
// rollback on failure.
package datamigrate

import (
	"time"
)

// MigrationConfig holds the parameters of one migration run. It is built
// once, never mutated afterwards, and passed by reference through every
// stage.
type MigrationConfig struct {
	SourceDatabase string
	TargetDatabase string

	BackupEnabled bool
	BackupDir     string

	BatchSize         int
	ValidateOnMigrate bool
	DryRun            bool
	PreserveIDs       bool
	SkipExisting      bool
	RollbackOnError   bool
	MaxFailureRate    float64
	Timeout           time.Duration

	// Collections restricts the run to a subset of the source's
	// collections; empty means all of them.
	Collections []string

	ReportDir           string
	ValidationSample    int
	RequireConfirmation bool
}

// Describe flattens the configuration for the run report.
func (cfg *MigrationConfig) Describe() map[string]interface{} {
	return map[string]interface{}{
		"source_database":     cfg.SourceDatabase,
		"target_database":     cfg.TargetDatabase,
		"backup_enabled":      cfg.BackupEnabled,
		"backup_dir":          cfg.BackupDir,
		"batch_size":          cfg.BatchSize,
		"validate_on_migrate": cfg.ValidateOnMigrate,
		"dry_run":             cfg.DryRun,
		"preserve_ids":        cfg.PreserveIDs,
		"skip_existing":       cfg.SkipExisting,
		"rollback_on_error":   cfg.RollbackOnError,
		"max_failure_rate":    cfg.MaxFailureRate,
		"timeout_seconds":     cfg.Timeout.Seconds(),
	}
}
