/*
Package api defines the HTTP surface of a curator: the server configuration
and the JSON messages exchanged between a coordinator and remote curators.

Subpackages:

  - curatorapi serves a curator.Curator over HTTP.
  - clients implements interfaces.Custodian on top of that API and resolves
    curator endpoints from DNS SRV records.

Field elements and group points travel as their canonical byte encodings,
base64 in JSON. Failures carry an ErrorCodeHeader so that clients can map
them back to the sentinel errors of the interfaces package.
*/
package api
