// Package imports runs bulk import crawls as background jobs.
//
// A Manager validates and queues requests. Workers take queued jobs, open a
// dedicated browser tab per job, drive a crawler run over it and publish the
// final aggregate as one Batch. A Handoff consumes batches and applies them to
// the library.
package imports
