// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

// RunState tracks where a migration run is in its lifecycle. A run starts
// in StatePending and always settles in StateCompleted or StateFailed;
// StateRollingBack is only entered from StateRunning.
type RunState int

const (
	StatePending RunState = iota
	StateRunning
	StateRollingBack
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateRollingBack:
		return "rolling_back"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run can no longer change state.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
