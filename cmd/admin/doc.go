// Package main (cmd/admin) implements the admin client of the entitlement stub.
//
// Commands:
//
//	status              - Count systems, registration codes and products
//	systems             - List announced systems with their activated services
//	remove-system       - Deregister a system; its credentials stop working
//	add-regcode         - Accept an additional registration code
//	remove-regcode      - Stop accepting a registration code
//	generate-admin      - Generate an administrator key pair
//	generate-admin-keys - Write the stub's admin keys file from public keys
//
// Administrators authenticate with ECDSA signatures over the request path and
// body. An admin's ID is the hex SHA-256 of its public key PEM.
//
// Example workflow:
//
//  1. Generate a key pair:
//     admin generate-admin --admin-privkey-file=alice.pem --admin-pubkey-file=alice.pub
//
//  2. Create the stub's admin keys file and start the stub with it:
//     admin generate-admin-keys --admin-pubkey-files=alice.pub
//     entitlement-stub --admin-keys-file=admin-keys.json
//
//  3. Administer the stub:
//     admin add-regcode --admin-privkey-file=alice.pem --admin-pubkey-file=alice.pub NEW-CODE
package main
