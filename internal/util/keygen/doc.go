// Package keygen generates credentials for newly allocated containers.
//
// Passwords are drawn from crypto/rand over an alphanumeric alphabet so they
// survive shell quoting in the bootstrap commands unchanged.
package keygen
