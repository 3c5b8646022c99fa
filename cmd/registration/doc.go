// Package main (cmd/registration) is the operator command line of the
// registration client.
//
//	registration register --regcode CODE [--email ADDR]
//	registration register-product [--name ID --version V --arch A] [--regcode CODE]
//	registration addons
//	registration cert show https://smt.example.com/smt.crt
//
// When the registration server presents an untrusted certificate, the
// certificate is printed and the command fails. Rerunning it with
// --trust-fingerprint SHA256:<fingerprint> trusts that certificate for one
// retry; "cert import" adds it to the system trust store permanently.
package main
