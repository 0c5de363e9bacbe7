// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"github.com/spf13/pflag"
)

// CommonFlags holds the flag values shared by every rtcswarm binary.
type CommonFlags struct {
	ConfigPath  string
	LogLevel    string
	ShowVersion bool
	ShowHelp    bool
}

// RegisterCommonFlags binds flags to flagSet. Binaries register their
// own flags alongside and then parse.
func RegisterCommonFlags(flagSet *pflag.FlagSet, flags *CommonFlags) {
	flagSet.StringVarP(&flags.ConfigPath, "config", "c", "", "path to the YAML config file (default: $RTCSWARM_CONFIG)")
	flagSet.StringVar(&flags.LogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.BoolVar(&flags.ShowVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&flags.ShowHelp, "help", "h", false, "show help")
}
