package alpha

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/zeebo/blake3"
)

// SeedSize is the length of the pairwise mask seeds.
const SeedSize = 32

const maskDomain = "threshold-curator-kms/alpha-mask/v1"

// DealPairSeeds samples one seed per unordered pair {i, j} of share indices
// in 1..n. The result maps each index to the seeds it shares with every
// other index; seeds[i][j] and seeds[j][i] hold the same bytes.
func DealPairSeeds(n int, r io.Reader) (map[int]map[int][]byte, error) {
	if r == nil {
		r = rand.Reader
	}

	seeds := make(map[int]map[int][]byte, n)
	for i := 1; i <= n; i++ {
		seeds[i] = make(map[int][]byte, n-1)
	}

	for i := 1; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			seed := make([]byte, SeedSize)
			if _, err := io.ReadFull(r, seed); err != nil {
				return nil, fmt.Errorf("failed to sample pair seed: %w", err)
			}
			seeds[i][j] = seed
			seeds[j][i] = append([]byte(nil), seed...)
		}
	}
	return seeds, nil
}

// Mask computes the zero-sharing mask of index self for one session:
//
//	m_self = sum_{j in quorum, j != self} sgn(self, j) * PRF(k_{self,j}, session || quorum)
//
// with sgn = +1 when self < j and -1 otherwise. Every pair term appears once
// with each sign, so the masks of a quorum sum to zero.
func Mask(f field.Field, self int, seeds map[int][]byte, session string, quorum []int) (field.Element, error) {
	acc := f.Zero()
	for _, j := range quorum {
		if j == self {
			continue
		}
		seed, ok := seeds[j]
		if !ok || len(seed) != SeedSize {
			return nil, fmt.Errorf("%w: no mask seed shared between %d and %d", interfaces.ErrInconsistentShares, self, j)
		}

		term, err := prf(f, seed, session, quorum)
		if err != nil {
			return nil, err
		}
		if self < j {
			acc = acc.Add(term)
		} else {
			acc = acc.Sub(term)
		}
	}
	return acc, nil
}

// prf expands a keyed BLAKE3 hash of the session transcript and reduces the
// output into the field.
func prf(f field.Field, seed []byte, session string, quorum []int) (field.Element, error) {
	h, err := blake3.NewKeyed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to key mask PRF: %w", err)
	}

	var buf [8]byte
	h.WriteString(maskDomain)
	binary.BigEndian.PutUint64(buf[:], uint64(len(session)))
	h.Write(buf[:])
	h.WriteString(session)
	binary.BigEndian.PutUint64(buf[:], uint64(len(quorum)))
	h.Write(buf[:])
	for _, idx := range quorum {
		binary.BigEndian.PutUint64(buf[:], uint64(idx))
		h.Write(buf[:])
	}

	out := make([]byte, max(64, f.ByteLen()+16))
	if _, err := h.Digest().Read(out); err != nil {
		return nil, fmt.Errorf("failed to expand mask PRF: %w", err)
	}
	return f.FromUniformBytes(out)
}
