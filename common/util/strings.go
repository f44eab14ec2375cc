// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "regexp"

var uriRedactionRE = regexp.MustCompile(`^([a-zA-Z+]+://)[^@/?]*@`)

// SanitizeURI redacts the credentials of a connection string for logging.
func SanitizeURI(u string) string {
	return uriRedactionRE.ReplaceAllString(u, "$1[**REDACTED**]@")
}
