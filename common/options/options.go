// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options implements command-line options that are used by all of
// the advisor tools.
package options

import (
	"fmt"
	"os"
	"runtime"

	"github.com/advisorhub/advisor-tools/common/util"
	flags "github.com/jessevdk/go-flags"
)

// Struct encompassing all of the options that are reused across tools:
// "help", "version", verbosity settings, connection settings, etc.
type ToolOptions struct {

	// The name of the tool
	AppName string

	// The version of the tool
	VersionStr string

	// Sub-option types
	*General
	*Verbosity
	*Connection

	// for caching the parser
	parser *flags.Parser
}

// Struct holding generic options
type General struct {
	Help       bool   `long:"help" description:"print usage"`
	Version    bool   `long:"version" description:"print the tool version and exit"`
	ConfigPath string `long:"config" value-name:"<filename>" description:"path to a YAML configuration file"`
}

// Struct holding verbosity-related options
type Verbosity struct {
	Verbose []bool `short:"v" long:"verbose" description:"more detailed log output (include multiple times for more verbosity, e.g. -vvvvv)"`
	Quiet   bool   `long:"quiet" description:"hide all log output"`
}

func (v Verbosity) Level() int {
	return len(v.Verbose)
}

func (v Verbosity) IsQuiet() bool {
	return v.Quiet
}

// Struct holding connection-related options
type Connection struct {
	URI           string `long:"uri" value-name:"<connection-string>" default:"mongodb://localhost:27017" description:"connection string of the document store"`
	Timeout       int    `long:"dialTimeout" default:"10" hidden:"true" description:"dial timeout in seconds"`
	SocketTimeout int    `long:"socketTimeout" default:"0" hidden:"true" description:"socket timeout in seconds (0 for no timeout)"`
	Compressors   string `long:"compressors" default:"none" hidden:"true" value-name:"<snappy,...>" description:"comma-separated list of compressors to enable"`
}

// Interface for extra options that need to be used by specific tools
type ExtraOptions interface {
	// Name specifying what type of options these are
	Name() string
}

// Ask for a new instance of tool options
func New(appName, versionStr, usageStr string) *ToolOptions {
	opts := &ToolOptions{
		AppName:    appName,
		VersionStr: versionStr,

		General:    &General{},
		Verbosity:  &Verbosity{},
		Connection: &Connection{},
		parser: flags.NewNamedParser(
			fmt.Sprintf("%v %v", appName, usageStr), flags.None),
	}

	if _, err := opts.parser.AddGroup("general options", "", opts.General); err != nil {
		panic(fmt.Errorf("couldn't register general options: %v", err))
	}
	if _, err := opts.parser.AddGroup("verbosity options", "", opts.Verbosity); err != nil {
		panic(fmt.Errorf("couldn't register verbosity options: %v", err))
	}
	if _, err := opts.parser.AddGroup("connection options", "", opts.Connection); err != nil {
		panic(fmt.Errorf("couldn't register connection options: %v", err))
	}

	return opts
}

// AddOptions registers an additional options group to this instance
func (opts *ToolOptions) AddOptions(extraOpts ExtraOptions) {
	_, err := opts.parser.AddGroup(extraOpts.Name()+" options", "", extraOpts)
	if err != nil {
		panic(fmt.Sprintf("error setting command line options for %v: %v", extraOpts.Name(), err))
	}
}

// ParseArgs parses the command line args, returning any extra positional
// arguments.
func (opts *ToolOptions) ParseArgs(args []string) ([]string, error) {
	return opts.parser.ParseArgs(args)
}

// IsSet reports whether the named long option was given explicitly on the
// command line, as opposed to holding its default value.
func (opts *ToolOptions) IsSet(longName string) bool {
	option := opts.parser.FindOptionByLongName(longName)
	return option != nil && option.IsSet() && !option.IsSetDefault()
}

// Print the usage message for the tool to stdout.  Returns whether or not the
// help flag is specified.
func (opts *ToolOptions) PrintHelp(force bool) bool {
	if opts.Help || force {
		opts.parser.WriteHelp(os.Stdout)
	}
	return opts.Help
}

// Print the tool version to stdout.  Returns whether or not the version flag
// is specified.
func (opts *ToolOptions) PrintVersion() bool {
	if opts.Version {
		fmt.Printf("%v version: %v\n", opts.AppName, opts.VersionStr)
		fmt.Printf("Go version: %v\n", runtime.Version())
		fmt.Printf("   os: %v\n", runtime.GOOS)
		fmt.Printf("   arch: %v\n", runtime.GOARCH)
	}
	return opts.Version
}

// SanitizedURI returns the connection string with credentials redacted, for
// logging.
func (opts *ToolOptions) SanitizedURI() string {
	return util.SanitizeURI(opts.URI)
}
