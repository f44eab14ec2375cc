// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"os"
	"strings"
	"time"

	"github.com/advisorhub/advisor-tools/common/options"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Usage describes the datamigrate invocation for the help text.
const Usage = `--sourceDb <name> --targetDb <name> [options]

Migrate collections from a legacy database into the new platform schema.

See http://docs.advisorhub.com/tools/datamigrate for more information.`

// MigrationOptions holds the flags specific to datamigrate. Every field
// can also come from the YAML file named by --config; explicit flags win.
type MigrationOptions struct {
	SourceDatabase string `long:"sourceDb" value-name:"<name>" description:"database to migrate from" yaml:"source_database"`
	TargetDatabase string `long:"targetDb" value-name:"<name>" description:"database to migrate into" yaml:"target_database"`

	NoBackup  bool   `long:"noBackup" description:"skip the pre-migration backup (rollback on error will be unavailable)" yaml:"no_backup"`
	BackupDir string `long:"backupDir" value-name:"<directory>" default:"backups" description:"directory for backup files" yaml:"backup_dir"`

	BatchSize         int     `long:"batchSize" value-name:"<count>" default:"500" description:"number of documents per bulk insert" yaml:"batch_size"`
	NoValidate        bool    `long:"noValidate" description:"skip per-document shape validation during migration" yaml:"no_validate"`
	DryRun            bool    `long:"dryRun" description:"run the full pipeline without writing to the target" yaml:"dry_run"`
	NewIDs            bool    `long:"newIds" description:"assign new identifiers in the target instead of preserving source identifiers" yaml:"new_ids"`
	SkipExisting      bool    `long:"skipExisting" description:"silently skip documents whose identifier already exists in the target" yaml:"skip_existing"`
	NoRollbackOnError bool    `long:"noRollbackOnError" description:"leave the target as-is when the run fails instead of restoring the backup" yaml:"no_rollback_on_error"`
	MaxFailureRate    float64 `long:"maxFailureRate" value-name:"<rate>" default:"0.05" description:"maximum tolerated fraction of failed documents per collection" yaml:"max_failure_rate"`
	TimeoutMinutes    int     `long:"timeout" value-name:"<minutes>" default:"30" description:"run timeout in minutes (0 for no timeout)" yaml:"timeout_minutes"`

	Collections      string `long:"collections" value-name:"<name,...>" description:"comma-separated subset of collections to migrate (default: all)" yaml:"collections"`
	ReportDir        string `long:"reportDir" value-name:"<directory>" default:"reports" description:"directory for run reports" yaml:"report_dir"`
	ValidationSample int    `long:"validationSample" value-name:"<count>" default:"0" description:"validate only the first N documents per collection (0 for all)" yaml:"validation_sample"`
	Yes              bool   `long:"yes" description:"skip the confirmation prompt" yaml:"yes"`
}

// Name returns a human-readable group name for migration options.
func (*MigrationOptions) Name() string {
	return "migration"
}

// Options wraps the shared tool options and the migration group.
type Options struct {
	*options.ToolOptions
	*MigrationOptions
}

// ParseOptions parses args into a ready-to-use Options. When --config
// names a YAML file, its values are applied first and the command line is
// re-parsed on top so explicit flags override the file.
func ParseOptions(rawArgs []string, versionStr string) (Options, error) {
	opts := options.New("datamigrate", versionStr, Usage)
	migrationOpts := &MigrationOptions{}
	opts.AddOptions(migrationOpts)

	extra, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}
	if len(extra) > 0 {
		return Options{}, errors.Errorf("error parsing positional arguments: %v", strings.Join(extra, ", "))
	}

	if opts.ConfigPath != "" {
		if err := applyConfigFile(opts.ConfigPath, opts, migrationOpts); err != nil {
			return Options{}, err
		}
	}

	return Options{opts, migrationOpts}, nil
}

// yaml key -> the long flag that overrides it, and how to copy the file's
// value into the live options
var configBindings = map[string]struct {
	flag  string
	apply func(dst, file *MigrationOptions)
}{
	"source_database":      {"sourceDb", func(d, f *MigrationOptions) { d.SourceDatabase = f.SourceDatabase }},
	"target_database":      {"targetDb", func(d, f *MigrationOptions) { d.TargetDatabase = f.TargetDatabase }},
	"no_backup":            {"noBackup", func(d, f *MigrationOptions) { d.NoBackup = f.NoBackup }},
	"backup_dir":           {"backupDir", func(d, f *MigrationOptions) { d.BackupDir = f.BackupDir }},
	"batch_size":           {"batchSize", func(d, f *MigrationOptions) { d.BatchSize = f.BatchSize }},
	"no_validate":          {"noValidate", func(d, f *MigrationOptions) { d.NoValidate = f.NoValidate }},
	"dry_run":              {"dryRun", func(d, f *MigrationOptions) { d.DryRun = f.DryRun }},
	"new_ids":              {"newIds", func(d, f *MigrationOptions) { d.NewIDs = f.NewIDs }},
	"skip_existing":        {"skipExisting", func(d, f *MigrationOptions) { d.SkipExisting = f.SkipExisting }},
	"no_rollback_on_error": {"noRollbackOnError", func(d, f *MigrationOptions) { d.NoRollbackOnError = f.NoRollbackOnError }},
	"max_failure_rate":     {"maxFailureRate", func(d, f *MigrationOptions) { d.MaxFailureRate = f.MaxFailureRate }},
	"timeout_minutes":      {"timeout", func(d, f *MigrationOptions) { d.TimeoutMinutes = f.TimeoutMinutes }},
	"collections":          {"collections", func(d, f *MigrationOptions) { d.Collections = f.Collections }},
	"report_dir":           {"reportDir", func(d, f *MigrationOptions) { d.ReportDir = f.ReportDir }},
	"validation_sample":    {"validationSample", func(d, f *MigrationOptions) { d.ValidationSample = f.ValidationSample }},
	"yes":                  {"yes", func(d, f *MigrationOptions) { d.Yes = f.Yes }},
}

// applyConfigFile overlays the YAML file onto the parsed options. Only
// keys actually present in the file are applied, and a flag given
// explicitly on the command line always beats the file.
func applyConfigFile(path string, toolOpts *options.ToolOptions, migrationOpts *MigrationOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "error reading configuration file %v", path)
	}

	fileOpts := &MigrationOptions{}
	if err := yaml.UnmarshalStrict(data, fileOpts); err != nil {
		return errors.Wrapf(err, "error parsing configuration file %v", path)
	}
	var present map[string]interface{}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return errors.Wrapf(err, "error parsing configuration file %v", path)
	}

	for key := range present {
		binding, known := configBindings[key]
		if !known {
			return errors.Errorf("unknown key %q in configuration file %v", key, path)
		}
		if toolOpts.IsSet(binding.flag) {
			continue
		}
		binding.apply(migrationOpts, fileOpts)
	}
	return nil
}

// BuildConfig turns the parsed options into the immutable run
// configuration.
func (opts Options) BuildConfig() *MigrationConfig {
	cfg := &MigrationConfig{
		SourceDatabase:      opts.SourceDatabase,
		TargetDatabase:      opts.TargetDatabase,
		BackupEnabled:       !opts.NoBackup,
		BackupDir:           opts.BackupDir,
		BatchSize:           opts.BatchSize,
		ValidateOnMigrate:   !opts.NoValidate,
		DryRun:              opts.DryRun,
		PreserveIDs:         !opts.NewIDs,
		SkipExisting:        opts.SkipExisting,
		RollbackOnError:     !opts.NoRollbackOnError,
		MaxFailureRate:      opts.MaxFailureRate,
		Timeout:             time.Duration(opts.TimeoutMinutes) * time.Minute,
		ReportDir:           opts.ReportDir,
		ValidationSample:    opts.ValidationSample,
		RequireConfirmation: !opts.Yes,
	}
	if opts.Collections != "" {
		for _, name := range strings.Split(opts.Collections, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				cfg.Collections = append(cfg.Collections, trimmed)
			}
		}
	}
	return cfg
}
