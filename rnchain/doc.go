// Package rnchain implements the Rn chain: the append-only history of
// protection keys of one data subject's dataset.
//
// Every Create cycle produces a link. The link's secret is split among
// 2t+1 curators and forgotten by the dealer; the link itself only records
// public data (sharing parameters, Feldman commitments, the hash of its
// predecessor, the owner's signature) and can be archived in any storage
// backend. Recovering a link runs the alpha protocol over the curators and
// checks the result against the link's commitment.
//
// Rotation modes decide where a new link's secret comes from:
//
//   - fresh: an independent random secret per epoch.
//   - reshare: the previous secret, re-split with a new polynomial.
//   - linked: a random secret, with the previous one sealed under it, so
//     recovering the head lets History walk back through every epoch.
//
// A chain with an owner key requires a signed, single-use Consent for every
// recovery. BreakGlass and EmergencyKit bypass consent but are first
// recorded in a hash-linked audit log.
package rnchain
