// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"context"
	"testing"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreflight(cfg *MigrationConfig, gateway db.Gateway) *PreflightChecks {
	return &PreflightChecks{Config: cfg, Source: gateway, Target: gateway}
}

func TestPreflightPassesWithHealthyStores(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedHealthySource(gateway)

	result := newPreflight(runConfig(t), gateway).Run(context.Background())

	assert.True(t, result.Success, "%v", result.Errors)
	assert.Contains(t, result.Message, "passed")
}

func TestPreflightRejectsInvalidConfig(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedHealthySource(gateway)

	cfg := runConfig(t)
	cfg.TargetDatabase = cfg.SourceDatabase
	cfg.BatchSize = 0
	result := newPreflight(cfg, gateway).Run(context.Background())

	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 2)
}

func TestPreflightRejectsMissingCollection(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedHealthySource(gateway)

	cfg := runConfig(t)
	cfg.Collections = []string{"users", "no_such_collection"}
	result := newPreflight(cfg, gateway).Run(context.Background())

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "no_such_collection")
}

func TestPreflightFailsOnInsufficientHeadroom(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedHealthySource(gateway)

	checks := newPreflight(runConfig(t), gateway)
	checks.FreeSpace = func(string) (uint64, error) { return 16, nil }
	result := checks.Run(context.Background())

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "headroom")
	assert.Zero(t, gateway.WriteOps(), "pre-flight must not mutate the stores")
}

func TestPreflightSkipsHeadroomWhenBackupDisabled(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedHealthySource(gateway)

	cfg := runConfig(t)
	cfg.BackupEnabled = false
	checks := newPreflight(cfg, gateway)
	checks.FreeSpace = func(string) (uint64, error) { return 0, nil }
	result := checks.Run(context.Background())

	assert.True(t, result.Success, "%v", result.Errors)
}
