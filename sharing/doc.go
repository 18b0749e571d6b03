// Package sharing implements (t, n) Shamir secret sharing over the prime
// fields of package field, with n fixed to 2t+1.
//
// Split samples a random polynomial of degree t-1 whose constant term is the
// secret and evaluates it at 1..n. When the field is a group, the Feldman
// commitments C_k = a_k*B are published with the shares so every curator
// can check its own share with VerifyShare without learning anything else.
//
// Reconstruct interpolates at zero from the first t shares and checks that
// any further share lies on the same polynomial, detecting a corrupted or
// lying curator with ErrInconsistentShares.
//
// LagrangeAtZero exposes the basis coefficients used by the alpha protocol,
// where each curator weights its own share instead of handing it out.
//
// SplitBytes and CombineBytes share arbitrary byte strings over GF(2^8)
// and back the emergency kit handed to offline custodians.
package sharing
