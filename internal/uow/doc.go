// Package uow defines the unit-of-work domain: record graphs, commit
// results, the queued task shape, and the interfaces the pipeline consumes.
package uow
