// Package importer runs import jobs for catalog entities in dependency
// order.
//
// One goroutine per entity type, bounded by Config.Concurrency. A
// dependent waits for its dependencies and runs only if every one of
// them succeeded; otherwise it ends skipped-dependency. Pages within an
// entity are sequential: fetch, transform, commit with the checkpoint
// of the next cursor. Cancel is checked between pages, and commits run
// on a context that is never cancelled, so an interrupted run resumes
// from its last committed page.
package importer
