// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the datarollback tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/util"
	"github.com/advisorhub/advisor-tools/datarollback"
)

var VersionStr = "built-without-version-string"

func main() {
	opts, err := datarollback.ParseOptions(os.Args[1:], VersionStr)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("datarollback"))
		os.Exit(util.ExitFailure)
	}

	if opts.PrintHelp(false) {
		return
	}
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)

	if err := opts.Validate(); err != nil {
		log.Logvf(log.Always, "invalid options: %v", err)
		log.Logvf(log.Always, util.ShortUsage("datarollback"))
		os.Exit(util.ExitFailure)
	}

	log.Logvf(log.Info, "connecting to %v", opts.SanitizedURI())
	provider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		log.Logvf(log.Always, "error connecting to the document store: %v", err)
		os.Exit(util.ExitFailure)
	}
	defer provider.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := datarollback.Rollback(ctx, db.NewSessionGateway(provider), opts)
	if !result.Success {
		os.Exit(util.ExitFailure)
	}
}
