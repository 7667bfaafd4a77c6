// Package model defines the persisted entities of the control plane and the
// resource status machine.
package model
