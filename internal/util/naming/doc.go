// Package naming derives technical names for leased containers.
//
// Hostnames follow the pattern u{owner}-{owner name}-{template}-{short id}
// and are clamped to a single DNS label. Panel subdomains use the short
// resource id so they stay stable when an owner renames their account.
package naming
