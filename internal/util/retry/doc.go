// Package retry provides retry loops for transient failures.
//
// [WithExponentialBackoff] retries an operation with growing delays and is
// used around remote shell connections and other flaky dials. [Poll] probes
// a condition a bounded number of times at a fixed interval, which is how
// the pipeline waits for a container to report a network address.
package retry
