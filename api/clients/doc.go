// Package clients provides the HTTP client for remote curators and the DNS
// SRV lookup that finds them.
package clients
