// Package batch provides helpers for tools that apply one operation to many
// items.
//
// This package includes helpers for:
//   - Parsing item lists given either as JSON text or as structured arguments
//   - Processing items one by one with partial failures
//   - Formatting batch results in a consistent structure
package batch
