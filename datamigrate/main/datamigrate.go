// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the datamigrate tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/util"
	"github.com/advisorhub/advisor-tools/datamigrate"
)

var VersionStr = "built-without-version-string"

func main() {
	opts, err := datamigrate.ParseOptions(os.Args[1:], VersionStr)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("datamigrate"))
		os.Exit(util.ExitFailure)
	}

	if opts.PrintHelp(false) {
		return
	}
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)
	log.Logvf(log.Info, "connecting to %v", opts.SanitizedURI())

	provider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		log.Logvf(log.Always, "error connecting to the document store: %v", err)
		os.Exit(util.ExitFailure)
	}
	defer provider.Close()
	gateway := db.NewSessionGateway(provider)

	cfg := opts.BuildConfig()
	migration := datamigrate.New(cfg, gateway, gateway)
	migration.Confirm = promptOperator

	// an interrupt cancels the context; the run takes the emergency path
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migration.Run(ctx); err != nil {
		if err == datamigrate.ErrCancelled {
			log.Logvf(log.Always, "%v", err)
		} else {
			log.Logvf(log.Always, "Failed: %v", err)
		}
		os.Exit(util.ExitFailure)
	}
}

// promptOperator prints the run summary and reads a yes/no answer from
// stdin. Anything but "y" or "yes" declines.
func promptOperator(summary string) bool {
	fmt.Fprintf(os.Stderr, "%v\nContinue? (y/N): ", summary)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
