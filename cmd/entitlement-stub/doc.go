// Package main (cmd/entitlement-stub) runs the in-memory entitlement service
// of package httpserver. It accepts the demo registration code and serves a
// small product catalog, which makes the registration client usable without
// a real entitlement service:
//
//	entitlement-stub --listen-addr 127.0.0.1:8443 --tls-cert cert.pem --tls-key key.pem
//	registration --url https://127.0.0.1:8443 register --regcode DEMO-REGCODE
//
// Without certificate files, --tls-self-signed generates a certificate for
// the given hosts and logs its SHA-256 fingerprint, for exercising the
// client's trust-on-first-use flow. --admin-keys-file enables the signed
// admin API used by cmd/admin.
package main
