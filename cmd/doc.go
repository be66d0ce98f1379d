// Package cmd implements the command-line interface for slotkeeper.
//
// This package provides the following commands:
//   - serve: Start the MCP server that exposes the scheduling tools
//   - digest: Report underutilized days, once or on a cron schedule
//   - migrate: Apply, roll back or inspect the appointment store schema
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
