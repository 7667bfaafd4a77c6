// Package store is the gorm-backed datastore of the control plane.
//
// Every multi-row change that must not be observed half-applied (balance and
// ledger, cascading deletes, bulk status changes with history) runs inside a
// single transaction.
package store
