package checksum

import (
	"github.com/zeebo/blake3"

	"github.com/outofforest/tilestream/types"
)

// Sum computes BLAKE3 digest of the payload.
func Sum(data []byte) types.Digest {
	return blake3.Sum256(data)
}

// Verify reports whether data matches the digest.
func Verify(data []byte, digest types.Digest) bool {
	return Sum(data) == digest
}
