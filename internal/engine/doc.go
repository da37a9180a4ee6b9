// Package engine runs node jobs on a single-writer loop.
//
// ARCHITECTURE:
//
// Single-Writer Job Loop:
// Callers Submit jobs from any goroutine and get a Handle back. One
// goroutine calls Run, which executes jobs one at a time in submission
// order. This ensures:
//   - A long optimization never blocks the caller that started it
//   - The run store has exactly one writer
//   - Run listings have a stable order
//
// Job Processing Flow:
//  1. Submit stamps the job with a run ID and a seq from the Clock
//  2. Run dequeues jobs FIFO
//  3. The run is recorded as running in the store, when there is one
//  4. The node executes; optimization steps are streamed to the store
//  5. The run is marked succeeded or failed and the Handle is released
//
// Device:
// Optimization runs acquire the engine's Device around every render and
// backward pass. Engines sharing one Device interleave at step granularity.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Runs are ordered by seq from Clock.Next(), never by wall time.
//
// No Retry:
// A failed job is logged, recorded and returned through its Handle. The
// loop moves on to the next job.
package engine
