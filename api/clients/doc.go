/*
Package clients implements the HTTP client of the entitlement service.

ConnectClient implements interfaces.EntitlementService with JSON requests
over HTTPS. Every call takes its connect params: server URL, language,
registration token and the TLS verify callback of the calling session. A new
transport is built per call, so a certificate accepted through a one-time
fingerprint override is never reused by a later call.

Announcements authenticate with the registration code ("Token token=<code>");
all other calls use the system credentials read from the credentials store.

Errors map onto the interfaces error taxonomy:

  - 401 and 403 responses match interfaces.ErrServiceAuth
  - other non-2xx responses match interfaces.ErrRemote; the message of the
    service is available from *interfaces.APIError
  - connection, DNS and TLS failures match interfaces.ErrTransport
  - expired deadlines match interfaces.ErrTimeout as well

Requests are never retried.

AdminClient drives the admin API of the entitlement stub (package
httpserver), signing each request with the administrator's ECDSA key.
*/
package clients
