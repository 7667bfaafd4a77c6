// Package vpn issues and revokes WireGuard client credentials at the VPN
// provider.
//
// The provider hands back a complete client configuration. Revocation is keyed
// by the client's public key, which is derived from the private key inside the
// stored configuration with [ParseConfig] rather than extracted textually.
package vpn
