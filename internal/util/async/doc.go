// Package async runs independent operations concurrently with bounded
// parallelism and error collection.
//
// [RunAll] executes every task, even when some fail, and joins all failures.
// Batch jobs use it so one bad item never hides or halts the rest.
package async
