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
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testConfig() *MigrationConfig {
	return &MigrationConfig{
		SourceDatabase:    "legacy",
		TargetDatabase:    "advisory",
		BatchSize:         100,
		ValidateOnMigrate: true,
		PreserveIDs:       true,
		MaxFailureRate:    0.5,
	}
}

func newTestMigrator(cfg *MigrationConfig, gateway db.Gateway) *CollectionMigrator {
	return &CollectionMigrator{
		Config:   cfg,
		Source:   gateway,
		Target:   gateway,
		Registry: DefaultRegistry(),
		Schemas:  TargetSchemas(),
	}
}

// seedUsersOneBadEmail loads two users, one of which has an email the
// target schema rejects.
func seedUsersOneBadEmail(gateway *db.MemoryGateway) (goodID, badID primitive.ObjectID) {
	goodID = primitive.NewObjectID()
	badID = primitive.NewObjectID()
	gateway.Seed("legacy", "users",
		bson.D{{"_id", goodID}, {"email", "kim@example.com"}, {"name", "Kim Doe"}},
		bson.D{{"_id", badID}, {"email", "not-an-email"}, {"name", "Bad Email"}},
	)
	return goodID, badID
}

func TestMigrateCollectionCountsGoodAndBadDocuments(t *testing.T) {
	gateway := db.NewMemoryGateway()
	goodID, _ := seedUsersOneBadEmail(gateway)

	result := newTestMigrator(testConfig(), gateway).MigrateCollection(context.Background(), "users")

	assert.True(t, result.Success, "failure rate 0.5 does not exceed the 0.5 maximum: %v", result.Errors)
	assert.EqualValues(t, 2, result.RecordsProcessed)
	assert.EqualValues(t, 1, result.RecordsMigrated)
	assert.EqualValues(t, 1, result.RecordsFailed)
	require.Len(t, result.Errors, 1)

	migrated := gateway.Docs("advisory", "users")
	require.Len(t, migrated, 1)
	id, _ := getField(migrated[0], "_id")
	assert.Equal(t, goodID, id)
}

func TestMigrateCollectionFailureRateGate(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedUsersOneBadEmail(gateway)

	cfg := testConfig()
	cfg.MaxFailureRate = 0.4
	result := newTestMigrator(cfg, gateway).MigrateCollection(context.Background(), "users")

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "failure rate")
}

func TestMigrateCollectionDryRunWritesNothing(t *testing.T) {
	liveGateway := db.NewMemoryGateway()
	dryGateway := db.NewMemoryGateway()
	seedUsersOneBadEmail(liveGateway)
	seedUsersOneBadEmail(dryGateway)

	liveResult := newTestMigrator(testConfig(), liveGateway).MigrateCollection(context.Background(), "users")

	dryCfg := testConfig()
	dryCfg.DryRun = true
	dryResult := newTestMigrator(dryCfg, dryGateway).MigrateCollection(context.Background(), "users")

	// a dry run reports exactly the counts a live run would
	assert.Equal(t, liveResult.RecordsProcessed, dryResult.RecordsProcessed)
	assert.Equal(t, liveResult.RecordsMigrated, dryResult.RecordsMigrated)
	assert.Equal(t, liveResult.RecordsFailed, dryResult.RecordsFailed)

	assert.Zero(t, dryGateway.WriteOps(), "dry run must not write to the target")
	assert.NotZero(t, liveGateway.WriteOps())
	assert.Empty(t, dryGateway.Docs("advisory", "users"))
}

func TestMigrateCollectionSkipsExistingDocuments(t *testing.T) {
	gateway := db.NewMemoryGateway()
	existingID := primitive.NewObjectID()
	freshID := primitive.NewObjectID()
	gateway.Seed("legacy", "users",
		bson.D{{"_id", existingID}, {"email", "old@example.com"}},
		bson.D{{"_id", freshID}, {"email", "new@example.com"}},
	)
	gateway.Seed("advisory", "users",
		bson.D{{"_id", existingID}, {"email", "old@example.com"}, {"status", "active"}},
	)

	cfg := testConfig()
	cfg.SkipExisting = true
	result := newTestMigrator(cfg, gateway).MigrateCollection(context.Background(), "users")

	require.True(t, result.Success, "%v", result.Errors)
	assert.EqualValues(t, 2, result.RecordsProcessed)
	assert.EqualValues(t, 1, result.RecordsMigrated)
	assert.EqualValues(t, 0, result.RecordsFailed)
	assert.Contains(t, result.Message, "skipped")
	assert.Len(t, gateway.Docs("advisory", "users"), 2)
}

func TestMigrateCollectionEmptySource(t *testing.T) {
	gateway := db.NewMemoryGateway()
	gateway.Seed("legacy", "users")

	result := newTestMigrator(testConfig(), gateway).MigrateCollection(context.Background(), "users")

	assert.True(t, result.Success)
	assert.EqualValues(t, 0, result.RecordsProcessed)
	assert.EqualValues(t, 0, result.RecordsMigrated)
	assert.EqualValues(t, 0, result.RecordsFailed)
	assert.Empty(t, result.Errors)
}

func TestMigrateCollectionNewIDs(t *testing.T) {
	gateway := db.NewMemoryGateway()
	gateway.Seed("legacy", "users",
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "kim@example.com"}},
	)

	cfg := testConfig()
	cfg.PreserveIDs = false
	result := newTestMigrator(cfg, gateway).MigrateCollection(context.Background(), "users")

	require.True(t, result.Success, "%v", result.Errors)
	migrated := gateway.Docs("advisory", "users")
	require.Len(t, migrated, 1)
	_, hasID := getField(migrated[0], "_id")
	assert.False(t, hasID, "source identifier must not be carried over")
}

func TestMigrateCollectionMidStreamInsertFailureIsFatal(t *testing.T) {
	gateway := db.NewMemoryGateway()
	gateway.Seed("legacy", "users",
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "a@example.com"}},
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "b@example.com"}},
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "c@example.com"}},
	)
	gateway.SetInsertError("users", errors.New("server on fire"))

	// batch size 1 makes every insert flush a batch, so the failure
	// surfaces mid-stream rather than at the final flush
	cfg := testConfig()
	cfg.BatchSize = 1
	cfg.MaxFailureRate = 0.99
	result := newTestMigrator(cfg, gateway).MigrateCollection(context.Background(), "users")

	assert.False(t, result.Success, "a lost batch fails the collection even under the rate gate")
	assert.EqualValues(t, 1, result.RecordsProcessed, "migration stops at the lost batch")
	assert.EqualValues(t, 0, result.RecordsMigrated)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "inserting")
}

func TestMigrateCollectionInsertFailureBreachesGate(t *testing.T) {
	gateway := db.NewMemoryGateway()
	gateway.Seed("legacy", "users",
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "a@example.com"}},
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "b@example.com"}},
	)
	gateway.SetInsertError("users", errors.New("server on fire"))

	result := newTestMigrator(testConfig(), gateway).MigrateCollection(context.Background(), "users")

	assert.False(t, result.Success)
	assert.EqualValues(t, 2, result.RecordsProcessed)
	assert.EqualValues(t, 0, result.RecordsMigrated)
	assert.EqualValues(t, 2, result.RecordsFailed)
}
