// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the docline command line client, a thin driver
// over the HTTP API.
package cli

import (
	"fmt"
	"os"
)

const (
	appName    = "docline"
	appVersion = "0.1.0"
)

// Execute runs the CLI application
func Execute() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "submit":
		return submitCommand(args)
	case "status":
		return statusCommand(args)
	case "results":
		return resultsCommand(args)
	case "metrics":
		return metricsCommand(args)
	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		return printUsage()
	}
}

func printUsage() error {
	fmt.Printf(`%s - document extraction pipeline client

Usage:
  %s <command> [arguments]

Commands:
  submit <file>      Submit a document for extraction (requires --schema)
  status <doc-id>    Show document and per-stage pipeline status
  results <doc-id>   Show extraction results with validation errors
  metrics <doc-id>   Show latency, token, and cost metrics
  version            Print version information
  help               Show this help message

Examples:
  %s submit invoice.txt --schema invoice_v1
  %s status 42
  %s results 42
  %s metrics 42 --server http://localhost:8000

`, appName, appName, appName, appName, appName, appName)
	return nil
}
