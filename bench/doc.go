// Package bench drives the Rn and Fn benchmarks: timing chain creation and
// recovery over a curator committee, and codec throughput under a data key
// recovered from one. cmd/rnbench is its command line front end.
package bench
