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
	"testing"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedSource(gateway *db.MemoryGateway) (usersID, advisorsID primitive.ObjectID) {
	usersID = primitive.NewObjectID()
	advisorsID = primitive.NewObjectID()
	joined := primitive.NewDateTimeFromTime(time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC))

	gateway.Seed("advisory", "users",
		bson.D{{"_id", usersID}, {"email", "kim@example.com"}, {"joined", joined}},
		bson.D{{"_id", primitive.NewObjectID()}, {"email", "ana@example.com"}, {"joined", joined}},
	)
	gateway.Seed("advisory", "advisors",
		bson.D{{"_id", advisorsID}, {"name", "Morgan"}, {"rating", 4.5}},
	)
	return usersID, advisorsID
}

func TestCreateBackupWritesManifestLast(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedSource(gateway)
	dir := t.TempDir()

	bw := &Writer{
		Gateway:        gateway,
		SourceDatabase: "advisory",
		Dir:            dir,
		BatchSize:      100,
		Enabled:        true,
	}
	result := bw.CreateBackup(context.Background())
	require.True(t, result.Success, "backup should succeed: %v", result.Errors)
	assert.EqualValues(t, 3, result.RecordsProcessed)

	meta, err := LoadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "advisory", meta.SourceDatabase)
	assert.EqualValues(t, 3, meta.TotalRecords)
	require.Len(t, meta.Collections, 2)

	for name, collMeta := range meta.Collections {
		path := filepath.Join(dir, name+".json")
		hash, err := HashFile(path)
		require.NoError(t, err)
		assert.Equal(t, collMeta.FileHash, hash, "stored hash matches file content for %v", name)
	}
}

func TestCreateBackupDisabledIsNoOp(t *testing.T) {
	bw := &Writer{Enabled: false}
	result := bw.CreateBackup(context.Background())
	assert.True(t, result.Success)
	assert.Zero(t, result.Duration)
	assert.Contains(t, result.Message, "disabled")
}

func TestCreateBackupAbortsOnCollectionFailure(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedSource(gateway)
	// a collection whose backup file cannot be created
	gateway.Seed("advisory", "bad/name", bson.D{{"_id", primitive.NewObjectID()}})
	dir := t.TempDir()

	bw := &Writer{
		Gateway:        gateway,
		SourceDatabase: "advisory",
		Dir:            dir,
		Enabled:        true,
	}
	result := bw.CreateBackup(context.Background())
	assert.False(t, result.Success)

	_, err := LoadMetadata(dir)
	assert.True(t, os.IsNotExist(err), "no manifest is written for a failed backup")
}

func TestRollbackRestoresDocuments(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedSource(gateway)
	dir := t.TempDir()

	bw := &Writer{Gateway: gateway, SourceDatabase: "advisory", Dir: dir, Enabled: true}
	require.True(t, bw.CreateBackup(context.Background()).Success)

	restorer := &Restorer{
		Gateway:        gateway,
		BackupPath:     dir,
		TargetDatabase: "advisory_v2",
	}
	result := restorer.Rollback(context.Background())
	require.True(t, result.Success, "rollback should succeed: %v", result.Errors)

	meta, err := LoadMetadata(dir)
	require.NoError(t, err)
	assert.EqualValues(t, meta.TotalRecords, result.RecordsMigrated)

	restored := gateway.Docs("advisory_v2", "users")
	original := gateway.Docs("advisory", "users")
	if diff := cmp.Diff(original, restored); diff != "" {
		t.Errorf("restored users differ from source (-want +got):\n%s", diff)
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedSource(gateway)
	dir := t.TempDir()

	bw := &Writer{Gateway: gateway, SourceDatabase: "advisory", Dir: dir, Enabled: true}
	require.True(t, bw.CreateBackup(context.Background()).Success)

	restorer := &Restorer{Gateway: gateway, BackupPath: dir, TargetDatabase: "restored"}

	first := restorer.Rollback(context.Background())
	require.True(t, first.Success)
	afterFirst := gateway.Docs("restored", "users")

	second := restorer.Rollback(context.Background())
	require.True(t, second.Success)
	afterSecond := gateway.Docs("restored", "users")

	assert.Equal(t, first.RecordsMigrated, second.RecordsMigrated)
	if diff := cmp.Diff(afterFirst, afterSecond); diff != "" {
		t.Errorf("second rollback produced a different document set (-first +second):\n%s", diff)
	}
}

func TestRollbackFailsClosedOnTamperedFile(t *testing.T) {
	gateway := db.NewMemoryGateway()
	seedSource(gateway)
	dir := t.TempDir()

	bw := &Writer{Gateway: gateway, SourceDatabase: "advisory", Dir: dir, Enabled: true}
	require.True(t, bw.CreateBackup(context.Background()).Success)

	// tamper with one backup file after the manifest was written
	usersFile := filepath.Join(dir, "users.json")
	data, err := os.ReadFile(usersFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(usersFile, append(data, ' '), 0644))

	restorer := &Restorer{Gateway: gateway, BackupPath: dir, TargetDatabase: "restored"}
	result := restorer.Rollback(context.Background())

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "integrity check failed")

	// the tampered collection must not have been restored
	assert.Empty(t, gateway.Docs("restored", "users"))
	// the untouched collection still restores
	assert.Len(t, gateway.Docs("restored", "advisors"), 1)
}

func TestRollbackWithoutManifestFailsImmediately(t *testing.T) {
	gateway := db.NewMemoryGateway()
	dir := t.TempDir()

	restorer := &Restorer{Gateway: gateway, BackupPath: dir, TargetDatabase: "restored"}
	result := restorer.Rollback(context.Background())

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "no backup found")
	assert.Zero(t, gateway.WriteOps(), "no store mutation may happen without a manifest")
}
