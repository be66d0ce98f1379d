// Package common provides helpers shared by the MCP tool packages: calendar
// resolution for a call, argument parsing, result rendering and the
// instrumentation wrapper every handler is registered through.
package common
