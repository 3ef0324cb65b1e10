// Package cmd implements the command-line interface for sbginvoice.
//
// This package provides the following commands:
//   - generate: Build the invoice for a month and email it
//   - auth: Authorize calendar access and cache the token
//   - version: Display version information
//
// The generate command is the default command when no subcommand is specified.
package cmd
