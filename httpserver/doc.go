/*
Package httpserver runs the HTTP listener of a curator process.

Every route registrar passed to New mounts its routes on a chi router next
to the operational endpoints:

  - GET /livez    liveness
  - GET /readyz   readiness, 503 while draining
  - GET /drain    mark the server not ready
  - GET /undrain  mark it ready again

Requests are logged through the flashbots httplogger middleware and
counted by the metrics package. With MetricsAddr set, Prometheus metrics
are served on a separate listener; with EnablePprof, pprof is mounted
under /debug.
*/
package httpserver
