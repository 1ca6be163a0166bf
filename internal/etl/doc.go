// Package etl provides the core building blocks of the analytics job
// execution engine: schema-less records, per-run result accounting, batch
// partitioning, the idempotent batch loader, extraction windows, and the
// retry wrapper used by the orchestrator.
//
// The engine processes one job at a time: extract a time window from the
// source store, transform surviving records into metric records, and load
// them in batches through an idempotent insert primitive. Failure handling
// follows three tiers with distinct policies:
//
//   - Record-level: a malformed record is logged, dropped, and counted in
//     the failed counter; the batch continues.
//   - Batch-level: a failing batch insert is logged and its contribution to
//     the loaded count omitted; the remaining batches are still attempted.
//   - Job-level: an extraction failure or anything unexpected escaping
//     transform/load marks the whole run failed; the [Result] is still
//     returned with timestamps finalized, never an error to the caller.
//
// Duplicate suppression, PII handling, and the per-domain metric
// transformations live in their own packages (dedup, pii, jobs); this
// package knows nothing about specific domains.
package etl
