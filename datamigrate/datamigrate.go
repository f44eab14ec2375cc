// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/advisorhub/advisor-tools/common/backup"
	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	"github.com/mitchellh/go-wordwrap"
	"github.com/pkg/errors"
)

// ErrCancelled is returned when the operator declines the confirmation
// prompt. The run never leaves StatePending.
var ErrCancelled = errors.New("migration cancelled by operator")

// DataMigrate orchestrates one migration run: pre-flight checks, backup,
// per-collection migration, post-migration validation, and reporting,
// with rollback on failure when a backup exists.
type DataMigrate struct {
	Config   *MigrationConfig
	Source   db.Gateway
	Target   db.Gateway
	Registry *Registry
	Schemas  map[string]*CollectionSchema

	// Confirm, when non-nil, is asked before any data moves. Returning
	// false cancels the run.
	Confirm func(summary string) bool

	// FreeSpace overrides the pre-flight disk probe; nil probes the real
	// filesystem.
	FreeSpace func(dir string) (uint64, error)

	migrationID        string
	state              RunState
	steps              []report.StepReport
	lastCompletedStage string
	backupTaken        bool
}

// New returns an orchestrator wired with the production transformers and
// target schemas.
func New(cfg *MigrationConfig, source, target db.Gateway) *DataMigrate {
	return &DataMigrate{
		Config:      cfg,
		Source:      source,
		Target:      target,
		Registry:    DefaultRegistry(),
		Schemas:     TargetSchemas(),
		migrationID: fmt.Sprintf("run_%s", time.Now().Format("20060102T150405")),
		state:       StatePending,
	}
}

// MigrationID identifies this run in report filenames.
func (dm *DataMigrate) MigrationID() string { return dm.migrationID }

// State reports where the run is in its lifecycle.
func (dm *DataMigrate) State() RunState { return dm.state }

// Steps returns the per-stage outcomes recorded so far.
func (dm *DataMigrate) Steps() []report.StepReport { return dm.steps }

// Run drives the migration from PENDING to COMPLETED or FAILED. Any
// unexpected failure, including the run timeout expiring, goes through
// the emergency path: attempt rollback if a backup exists, then write an
// emergency report naming the last completed stage.
func (dm *DataMigrate) Run(ctx context.Context) (err error) {
	cfg := dm.Config
	start := time.Now()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = dm.emergency(start, errors.Errorf("unexpected failure: %v", r))
		}
	}()

	log.Logvf(log.Always, "starting migration %v: %v -> %v%v",
		dm.migrationID, cfg.SourceDatabase, cfg.TargetDatabase, dryRunSuffix(cfg))

	checks := &PreflightChecks{Config: cfg, Source: dm.Source, Target: dm.Target, FreeSpace: dm.FreeSpace}
	checkResult := checks.Run(ctx)
	dm.recordStep("pre_flight_checks", checkResult)
	if !checkResult.Success {
		return dm.fail(start, errors.Errorf("pre-flight checks failed: %v", checkResult.Errors[0]))
	}

	collections, err := dm.collectionList(ctx)
	if err != nil {
		return dm.fail(start, errors.Wrap(err, "error listing source collections"))
	}

	if !dm.confirmRun(collections) {
		log.Logvf(log.Always, "migration cancelled before any data was moved")
		dm.writeReport("cancelled", start)
		return ErrCancelled
	}

	dm.state = StateRunning

	bw := &backup.Writer{
		Gateway:        dm.Source,
		SourceDatabase: cfg.SourceDatabase,
		Dir:            cfg.BackupDir,
		BatchSize:      int32(cfg.BatchSize),
		Enabled:        cfg.BackupEnabled && !cfg.DryRun,
	}
	backupResult := bw.CreateBackup(ctx)
	dm.recordStep("backup", backupResult)
	if !backupResult.Success {
		return dm.fail(start, errors.Errorf("backup failed: %v", backupResult.Errors[0]))
	}
	dm.backupTaken = bw.Enabled
	if err := ctx.Err(); err != nil {
		return dm.emergency(start, err)
	}

	migrator := &CollectionMigrator{
		Config:   cfg,
		Source:   dm.Source,
		Target:   dm.Target,
		Registry: dm.Registry,
		Schemas:  dm.Schemas,
	}
	for _, collection := range collections {
		result := migrator.MigrateCollection(ctx, collection)
		dm.recordStep("migrate_"+collection, result)
		if !result.Success {
			return dm.failWithRollback(start, errors.Errorf(
				"migration of %v failed: %v", collection, result.Errors[0]))
		}
		if err := ctx.Err(); err != nil {
			return dm.emergency(start, err)
		}
	}

	if cfg.DryRun {
		// nothing was written, so there is nothing to validate
		skipped := report.NewResult()
		skipped.Message = "post-migration validation skipped (dry run)"
		dm.recordStep("post_validation", skipped)
	} else {
		validation, validationErr := dm.postValidate(ctx, collections)
		if validationErr != nil {
			return dm.emergency(start, errors.Wrap(validationErr, "post-migration validation died"))
		}
		if validation.Summary.CriticalIssues > 0 {
			return dm.fail(start, errors.Errorf(
				"post-migration validation found %v critical issues", validation.Summary.CriticalIssues))
		}
	}

	dm.state = StateCompleted
	dm.writeReport("completed", start)
	log.Logvf(log.Always, "migration %v completed in %v", dm.migrationID, time.Since(start).Round(time.Millisecond))
	return nil
}

// postValidate runs the validator over the target database and records
// both the step and the validation report file.
func (dm *DataMigrate) postValidate(ctx context.Context, collections []string) (*report.ValidationReport, error) {
	cfg := dm.Config
	gateway, database := dm.Target, cfg.TargetDatabase

	validator := NewValidator(gateway, database)
	validator.SampleSize = cfg.ValidationSample
	validator.BatchSize = int32(cfg.BatchSize)

	start := time.Now()
	results, err := validator.ValidateAllCollections(ctx, collections)
	if err != nil {
		return nil, err
	}
	validation := report.NewValidationReport(database, results)

	stepResult := report.NewResult()
	stepResult.RecordsProcessed = validation.Summary.TotalDocuments
	stepResult.RecordsMigrated = validation.Summary.ValidDocuments
	stepResult.RecordsFailed = validation.Summary.InvalidDocuments
	if validation.Summary.CriticalIssues > 0 {
		stepResult.AddError("%v critical issues found", validation.Summary.CriticalIssues)
	}
	stepResult.Finish(start, "validated %v documents: %v issues",
		validation.Summary.TotalDocuments, validation.Summary.TotalIssues)
	dm.recordStep("post_validation", stepResult)

	if path, err := report.WriteValidationReport(cfg.ReportDir, validation); err != nil {
		log.Logvf(log.Always, "could not write validation report: %v", err)
	} else {
		log.Logvf(log.Always, "validation report written to %v", path)
	}
	return validation, nil
}

// failWithRollback rolls the target back from the run's backup when
// configured to, then settles the run into StateFailed.
func (dm *DataMigrate) failWithRollback(start time.Time, cause error) error {
	cfg := dm.Config
	if cfg.RollbackOnError && dm.backupTaken {
		dm.state = StateRollingBack
		log.Logvf(log.Always, "rolling back after failure: %v", cause)

		restorer := &backup.Restorer{
			Gateway:        dm.Target,
			BackupPath:     cfg.BackupDir,
			TargetDatabase: cfg.TargetDatabase,
			BatchSize:      cfg.BatchSize,
		}
		rollbackResult := restorer.Rollback(context.Background())
		dm.recordStep("rollback", rollbackResult)
		if !rollbackResult.Success {
			log.Logvf(log.Always, "rollback failed: %v", rollbackResult.Errors[0])
		}
	}
	return dm.fail(start, cause)
}

func (dm *DataMigrate) fail(start time.Time, cause error) error {
	dm.state = StateFailed
	dm.writeReport("failed", start)
	log.Logvf(log.Always, "migration %v failed: %v", dm.migrationID, cause)
	return cause
}

// emergency handles unexpected failures: interrupts, timeouts, and
// panics. It attempts a rollback when a backup exists and writes the
// emergency report naming the last completed stage.
func (dm *DataMigrate) emergency(start time.Time, cause error) error {
	cfg := dm.Config
	log.Logvf(log.Always, "emergency: %v (last completed stage: %v)", cause, dm.lastCompletedStage)

	er := &report.EmergencyReport{
		MigrationID:        dm.migrationID,
		Timestamp:          time.Now(),
		LastCompletedStage: dm.lastCompletedStage,
		Error:              cause.Error(),
	}
	if cfg.RollbackOnError && dm.backupTaken {
		er.RollbackAttempted = true
		dm.state = StateRollingBack

		restorer := &backup.Restorer{
			Gateway:        dm.Target,
			BackupPath:     cfg.BackupDir,
			TargetDatabase: cfg.TargetDatabase,
			BatchSize:      cfg.BatchSize,
		}
		rollbackResult := restorer.Rollback(context.Background())
		dm.recordStep("emergency_rollback", rollbackResult)
		er.RollbackSucceeded = rollbackResult.Success
	}

	if path, err := report.WriteEmergencyReport(cfg.ReportDir, er); err != nil {
		log.Logvf(log.Always, "could not write emergency report: %v", err)
	} else {
		log.Logvf(log.Always, "emergency report written to %v", path)
	}

	dm.state = StateFailed
	dm.writeReport("failed", start)
	return cause
}

func (dm *DataMigrate) recordStep(step string, result *report.MigrationResult) {
	dm.steps = append(dm.steps, report.NewStepReport(step, result))
	for _, warning := range result.Warnings {
		log.Logvf(log.Info, "%v: %v", step, warning)
	}
	if result.Success {
		dm.lastCompletedStage = step
	}
}

func (dm *DataMigrate) writeReport(status string, start time.Time) {
	rep := report.NewMigrationReport(dm.migrationID, status, dm.Config.Describe(), time.Since(start), dm.steps)
	if path, err := report.WriteMigrationReport(dm.Config.ReportDir, rep); err != nil {
		log.Logvf(log.Always, "could not write migration report: %v", err)
	} else {
		log.Logvf(log.Always, "migration report written to %v", path)
	}
}

// collectionList resolves the collections this run covers, in sorted
// order for deterministic sequencing.
func (dm *DataMigrate) collectionList(ctx context.Context) ([]string, error) {
	if len(dm.Config.Collections) > 0 {
		sorted := append([]string(nil), dm.Config.Collections...)
		sort.Strings(sorted)
		return sorted, nil
	}
	collections, err := dm.Source.ListCollections(ctx, dm.Config.SourceDatabase)
	if err != nil {
		return nil, err
	}
	sort.Strings(collections)
	return collections, nil
}

// confirmRun asks the operator to approve the run. Dry runs and runs
// without a confirmation hook proceed unprompted.
func (dm *DataMigrate) confirmRun(collections []string) bool {
	cfg := dm.Config
	if dm.Confirm == nil || !cfg.RequireConfirmation || cfg.DryRun {
		return true
	}
	summary := fmt.Sprintf(
		"About to migrate %v collections (%v) from %v to %v. Backup enabled: %v. Rollback on error: %v. Maximum failure rate: %.1f%%.",
		len(collections), joinCollections(collections), cfg.SourceDatabase, cfg.TargetDatabase,
		cfg.BackupEnabled, cfg.RollbackOnError, cfg.MaxFailureRate*100)
	return dm.Confirm(wordwrap.WrapString(summary, 78))
}

func joinCollections(collections []string) string {
	out := ""
	for i, name := range collections {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}

func dryRunSuffix(cfg *MigrationConfig) string {
	if cfg.DryRun {
		return " (dry run)"
	}
	return ""
}
