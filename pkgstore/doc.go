// Package pkgstore is a file-backed package manager configuration.
//
// The store keeps its state below a root directory:
//
//	products.d/baseproduct   installed base product (product XML)
//	services.d/<name>.service repository services (JSON)
//	repos.d/<name>.json       repositories of a service, from its repoindex.xml
//	renames.json              product renames reported by the entitlement service
//
// Service credentials go to the configured credentials store. Every file is
// replaced atomically.
package pkgstore
