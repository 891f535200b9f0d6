// Package cli wires together the Cobra command tree for the flsverify binary.
//
// It defines the root command and all subcommands (extract, diff, analyze,
// pending, review, merge, validate, progress, report, config, cache,
// version), binds flags, reads configuration, invokes the engine packages,
// and returns deterministic exit codes for scripted pipelines.
package cli
