// package pipeline implements fingerprint extraction and ingestion.
//
// A [Coordinator] seeds a [WorkQueue] with chunks of pending catalog files, runs a fixed pool of
// [Worker] goroutines that fingerprint them, and persists every batch a worker returns through a
// [Sink] before acknowledging it on the worker's [Conn]. A worker holds at most one
// unacknowledged batch, so in-flight work is bounded by the pool size.
//
// Delivery is at-least-once: a batch that was never acknowledged leaves its files unflagged in the
// catalog and they are picked up again by the next run. Cache inserts skip duplicates, so replays
// are harmless.
package pipeline
