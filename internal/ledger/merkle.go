package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// MerkleRoot computes the root over a list of hex-encoded leaf hashes.
// Levels with an odd node count promote the last node unchanged. An empty
// list hashes to the genesis hash.
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return GenesisHash
	}
	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}
