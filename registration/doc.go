// Package registration implements the registration session: announcing the
// system, activating and upgrading products, listing addons and tracking the
// TLS trust failures of the remote calls.
//
// A session is wired from an entitlement service client, a package store and
// a credentials store:
//
//	creds, _ := storage.NewCredentialsStore(storage.DefaultCredentialsURI, log)
//	session := registration.NewSession(registration.Config{
//		URL:         api.DefaultURL,
//		Language:    os.Getenv("LANG"),
//		CmdlinePath: registration.DefaultCmdlinePath,
//	}, registration.Deps{
//		Service:     clients.NewConnectClient(creds, log),
//		Packages:    pkgstore,
//		Credentials: creds,
//		Log:         log,
//	})
//
// When a call fails because the server certificate was rejected, the error
// wraps an *interfaces.TrustFailureError. After the operator confirmed the
// certificate, TrustOnce accepts it for the next call only.
package registration
