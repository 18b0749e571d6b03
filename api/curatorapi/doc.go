// Package curatorapi exposes a curator.Curator over HTTP so that a
// coordinator in another process can deal shares to it and run the alpha
// protocol against it. The matching client lives in api/clients.
package curatorapi
