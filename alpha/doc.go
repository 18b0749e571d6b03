// Package alpha computes the reconstruction value of a shared secret as a
// multiparty computation among the curators holding its shares.
//
// A run has three phases. The coordinator first probes every contributor
// concurrently and fixes a quorum Q from the first t that hold a share for
// the epoch. Each quorum member then computes, in its own goroutine, a
// partial contribution from its share and sends only that partial back.
// Finally the coordinator sums exactly t partials.
//
// In scalar mode the partial of index i is
//
//	partial_i = L_i(0)*y_i + m_i
//
// where L_i(0) is the Lagrange coefficient of i over Q and m_i a
// zero-sharing mask built from pairwise seeds dealt with the shares:
// m_i = sum_{j in Q, j != i} sgn(i,j)*PRF(k_ij, session||Q). The masks of a
// quorum sum to zero, so the total is the secret while a single partial is
// uniformly random to anyone lacking the pair seeds.
//
// In exponent mode the partial is (L_i(0)*y_i)*P for a public point P and
// the result is secret*P. A point does not reveal its discrete logarithm,
// so no masks are needed and the secret itself is never formed.
package alpha
