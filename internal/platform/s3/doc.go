// Package s3 archives backup rotation manifests to an S3-compatible bucket.
//
// A manifest records, for one resource and one rotation run, which backup
// archives were evicted and which one was created, so that an operator can
// audit retention without access to the hypervisor storage. Archiving is
// optional and best-effort.
package s3
