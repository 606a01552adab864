// Package report renders scan results for the command line.
//
// Two kinds of report exist: a list of URL verdicts (scan, and the panel's
// manual scan) and a page report produced by observing a document. Each is
// available as colored text, JSON, or Markdown through the Writer
// interface.
package report
