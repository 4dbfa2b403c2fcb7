// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown for sharing, with a step status chart
//
// Every writer honors the requested output shape: json renders the
// complete result, summary renders status and one headline per step, and
// detailed adds the summary and success rate to the complete result.
//
// Design decision: We separate report writing from result data structures
// (which are in the model package). This allows adding new output formats
// without modifying the core data structures.
package report
