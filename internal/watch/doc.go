// Package watch maintains the filesystem watch behind again's live-reload
// loop. A [Provider] turns a set of base directories into batches of
// created or modified paths; a [Controller] runs each watch generation on
// its own goroutine and hands out [Handle] values the orchestrator can
// stop and join.
package watch
