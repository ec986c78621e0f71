package chunkgen

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// ChunkSeed derives chunk_seed = hash(world_seed, chunk_coord) per spec
// 4.B step 1. blake2b-256 gives better avalanche across the 3-D lattice
// than a linear combination (the teacher's 2-D `seed + x*31 + y*17`)
// would, so neighbouring chunks don't draw correlated PRNG streams.
func ChunkSeed(worldSeed uint64, coord geo.ChunkCoord) uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:8], worldSeed)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(coord.X))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(coord.Y))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(coord.Z))

	sum := blake2b.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}
