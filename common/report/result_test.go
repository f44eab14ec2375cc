// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultCombineWith(t *testing.T) {
	total := NewResult()
	total.RecordsProcessed = 10
	total.RecordsMigrated = 10

	other := NewResult()
	other.RecordsProcessed = 5
	other.RecordsMigrated = 3
	other.RecordsFailed = 2
	other.AddError("two documents failed")

	total.CombineWith(other)
	assert.False(t, total.Success, "combining with a failed result fails the total")
	assert.EqualValues(t, 15, total.RecordsProcessed)
	assert.EqualValues(t, 13, total.RecordsMigrated)
	assert.EqualValues(t, 2, total.RecordsFailed)
	assert.Len(t, total.Errors, 1)
}

func TestResultFailureRate(t *testing.T) {
	r := NewResult()
	assert.Zero(t, r.FailureRate(), "an empty result has no failure rate")

	r.RecordsProcessed = 4
	r.RecordsFailed = 1
	assert.Equal(t, 0.25, r.FailureRate())
}

func TestResultFinishStampsMessageAndDuration(t *testing.T) {
	r := NewResult()
	r.Finish(time.Now().Add(-time.Second), "moved %v records", 7)
	assert.Equal(t, "moved 7 records", r.Message)
	assert.True(t, r.Duration >= time.Second)
}

func TestMigrationReportSummary(t *testing.T) {
	good := NewResult()
	good.RecordsProcessed = 8
	good.RecordsMigrated = 8

	bad := NewResult()
	bad.RecordsProcessed = 2
	bad.RecordsFailed = 2
	bad.AddError("boom")

	steps := []StepReport{NewStepReport("migrate_users", good), NewStepReport("migrate_advisors", bad)}
	rep := NewMigrationReport("run_test", "failed", nil, time.Second, steps)

	assert.Equal(t, 2, rep.Summary.TotalSteps)
	assert.Equal(t, 1, rep.Summary.SuccessfulSteps)
	assert.Equal(t, 1, rep.Summary.FailedSteps)
	assert.EqualValues(t, 10, rep.Summary.TotalRecordsProcessed)
	assert.EqualValues(t, 8, rep.Summary.TotalRecordsMigrated)
	assert.Equal(t, 0.8, rep.Summary.SuccessRate)
}
