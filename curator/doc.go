// Package curator implements a storage curator's side of threshold key
// management. A Curator accepts one share per chain epoch together with the
// pairwise mask seeds, verifies the share against the dealer's Feldman
// commitments, and later answers alpha protocol requests with partial
// contributions computed from that share.
//
// Availability can be toggled to simulate curators that are offline during
// a recovery.
package curator
