/*
Package api defines the wire types of the entitlement service REST API and
the configuration shared by HTTP servers in this module.

# Endpoints

	POST /connect/subscriptions/systems   announce a system (Authorization: Token token=<regcode>)
	PUT  /connect/systems                 update the system (distribution target)
	POST /connect/systems/products        activate a product
	PUT  /connect/systems/products        upgrade to a product
	GET  /connect/systems/products        show a product with its extensions
	GET  /connect/systems/activations     list activated products

All endpoints except the announcement authenticate with the system
credentials using HTTP basic auth. Error replies carry an ErrorResponse body.

# Subpackages

  - clients: HTTP client implementing interfaces.EntitlementService
*/
package api
