// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package datarollback restores a database from a datamigrate backup
// independently of any migration run.
package datarollback

import (
	"context"
	"strings"

	"github.com/advisorhub/advisor-tools/common/backup"
	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/options"
	"github.com/advisorhub/advisor-tools/common/report"
	"github.com/pkg/errors"
)

// Usage describes the datarollback invocation for the help text.
const Usage = `--backupPath <directory> --targetDb <name> [options]

Restore a database from a datamigrate backup, verifying each file's
content hash before any data is written.

See http://docs.advisorhub.com/tools/datarollback for more information.`

// RollbackOptions holds the flags specific to datarollback.
type RollbackOptions struct {
	BackupPath     string `long:"backupPath" value-name:"<directory>" description:"directory holding the backup manifest and files"`
	TargetDatabase string `long:"targetDb" value-name:"<name>" description:"database to restore into"`
	BatchSize      int    `long:"batchSize" value-name:"<count>" default:"500" description:"number of documents per bulk insert"`
}

// Name returns a human-readable group name for rollback options.
func (*RollbackOptions) Name() string {
	return "rollback"
}

// Options wraps the shared tool options and the rollback group.
type Options struct {
	*options.ToolOptions
	*RollbackOptions
}

// ParseOptions parses args into a ready-to-use Options.
func ParseOptions(rawArgs []string, versionStr string) (Options, error) {
	opts := options.New("datarollback", versionStr, Usage)
	rollbackOpts := &RollbackOptions{}
	opts.AddOptions(rollbackOpts)

	extra, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}
	if len(extra) > 0 {
		return Options{}, errors.Errorf("error parsing positional arguments: %v", strings.Join(extra, ", "))
	}
	return Options{opts, rollbackOpts}, nil
}

// Validate checks that the required flags are present.
func (opts Options) Validate() error {
	if opts.BackupPath == "" {
		return errors.New("--backupPath is required")
	}
	if opts.TargetDatabase == "" {
		return errors.New("--targetDb is required")
	}
	return nil
}

// Rollback restores the target database from the backup and returns the
// stage result.
func Rollback(ctx context.Context, gateway db.Gateway, opts Options) *report.MigrationResult {
	restorer := &backup.Restorer{
		Gateway:        gateway,
		BackupPath:     opts.BackupPath,
		TargetDatabase: opts.TargetDatabase,
		BatchSize:      opts.BatchSize,
	}
	result := restorer.Rollback(ctx)

	for _, warning := range result.Warnings {
		log.Logvf(log.Always, "warning: %v", warning)
	}
	for _, errMsg := range result.Errors {
		log.Logvf(log.Always, "error: %v", errMsg)
	}
	log.Logvf(log.Always, "%v", result.Message)
	return result
}
