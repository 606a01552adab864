// Package model defines the core data structures shared by the three
// execution contexts of the CyberBuddy extension pipeline.
//
// This package contains the following main types:
//   - ScanTarget: one unit of scan work (URL, source tag, optional element)
//   - ScanVerdict: the immutable classification result from the backend
//   - ScanResult: a verdict or a ScanError, the shape that crosses contexts
//   - SessionState: the persisted login session
//   - ProtectionConfig: the user-togglable protection settings
//
// Models live in their own package so that the store, broker, observer and
// panel packages can share them without import cycles.
package model
