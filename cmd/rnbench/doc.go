/*
Command rnbench benchmarks threshold curator key management.

	rnbench rn --threshold 2 --chain-size 10 --rotation linked --repeat 5
	rnbench fn --size 1048576 --cipher chacha20-poly1305 --store file:///tmp/fn
	rnbench serve-curator --listen 127.0.0.1:8081 --field ed25519

rn builds a chain of --chain-size links over n = 2t+1 curators, then times
one more create and the recovery of the new head, reporting the alpha
sub-step separately. fn recovers a data key from a one-link chain and
measures codec throughput with it. serve-curator runs one curator over
HTTP; rn can use a set of them through --curators-srv.

Invalid parameters and failed runs exit non-zero without printing results.
*/
package main
