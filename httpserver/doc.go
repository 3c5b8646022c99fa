/*
Package httpserver implements an in-memory entitlement service.

It serves the endpoints used by the registration client against state held
in memory, which makes it suitable for development and end-to-end tests:

  - POST /connect/subscriptions/systems - announce a system (Token auth with a registration code)
  - POST /connect/systems/products - activate a product (system basic auth)
  - PUT /connect/systems/products - upgrade to a product
  - GET /connect/systems/products - show a product with its extensions
  - PUT /connect/systems - update hostname and target distribution
  - GET /connect/systems/activations - list activations
  - GET /access/services/{id}/repo/repoindex.xml - repositories of an activated service

Errors are returned as JSON documents with "type", "error" and
"localized_error" fields. Unknown registration codes and bad system
credentials result in 401, unknown products in 422.

# Admin API

With admin public keys configured (Handler.WithAdmin) the server mounts a
signed admin API under /admin to list and remove systems and to add and
remove registration codes. Requests carry X-Admin-ID and an ECDSA
X-Admin-Signature over the path and body; see api/clients.AdminClient.

# Operations

Like a production service the server exposes liveness and readiness checks
(/livez, /readyz), drain and undrain endpoints for load balancer rotation
(/drain, /undrain), an optional pprof API and a Prometheus metrics endpoint
on its own address. Every request is logged with httplogger.

# Usage

	state := httpserver.DemoState("x86_64")
	handler := httpserver.NewHandler(state, logger)
	server, err := httpserver.New(&api.HTTPServerConfig{
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:8090",
		Log:         logger,
	}, handler)
	if err != nil {
		return err
	}
	server.RunInBackground()
	defer server.Shutdown()

In tests the router can be served by httptest:

	srv := httptest.NewTLSServer(server.Handler())
*/
package httpserver
