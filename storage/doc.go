// Package storage persists system and per-service credentials issued by the
// entitlement service.
//
// Credentials stores are specified by URI:
//
//	file:///etc/zypp/credentials.d
//	vault://vault.example.com:8200/secret/registration/host1
//
// The file backend writes one file per credentials path in the package
// manager's format:
//
//	username=<login>
//	password=<password>
//
// Files are replaced atomically (temporary file, fsync, rename) with mode
// 0600. The Vault backend stores the same fields in a KV v2 secret and reads
// its token from VAULT_TOKEN.
//
// A comma separated list of URIs creates a MultiStore: the first store is
// the primary, the others receive copies of every write and serve reads the
// primary cannot answer.
package storage
