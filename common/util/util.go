// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package util provides helpers shared by all of the advisor tools.
package util

import (
	"fmt"
)

// Exit codes for the tools.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ShortUsage returns a one-line usage hint for the named tool.
func ShortUsage(tool string) string {
	return fmt.Sprintf("try '%s --help' for more information", tool)
}

// Pluralize returns the singular or plural form based on the amount.
func Pluralize(amount int, singular, plural string) string {
	if amount == 1 {
		return singular
	}
	return plural
}
