// Package runstore persists run records. Records are saved incrementally
// while a run executes so an operator can inspect progress, and a crash
// leaves the last saved state behind for diagnosis.
//
// Two backends are provided: a JSON file store for single-node deployments
// and a SQLite store for installations that want queryable history.
package runstore
