package persistence

import (
	"fmt"

	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
	"github.com/kestrel-sim/worldkernel/internal/worldmodel"
)

// CurrentSchemaVersion is the schema_version this build writes and the
// highest it accepts on load (spec 6: refuse schema_version > current,
// migrate schema_version < current).
const CurrentSchemaVersion = 1

// ChunkRuntime is the generation-seed context a replay needs to
// re-derive chunk_seed deterministically (spec 4.H).
type ChunkRuntime struct {
	WorldSeed               uint64
	AsteroidFragmentEnabled bool
	SeedOffset              uint64
	SpacingCm               int64
}

// Snapshot is the full versioned persistence record (spec 4.H): the
// store's entity/chunk/ledger tables (worldmodel.Snapshot) plus the
// fields owned outside the store — schema version, world config, chunk
// generation runtime, and the kernel's tick. The event_seq cursor
// travels inside World (worldmodel.Snapshot.NextEventSeq).
type Snapshot struct {
	SchemaVersion                int
	ChunkGenerationSchemaVersion int

	WorldConfig  worldconfig.WorldConfig
	ChunkRuntime ChunkRuntime

	Tick uint64

	World worldmodel.Snapshot
}

// migrator upgrades a Snapshot one schema version forward, filling any
// field the older schema never wrote with a documented default.
type migrator func(Snapshot) Snapshot

// migrators is the registered upgrade chain, indexed by the version it
// upgrades FROM. migrators[0] turns a schema_version-0 snapshot (the
// pre-versioning baseline, before ChunkGenerationSchemaVersion existed)
// into schema_version 1.
var migrators = map[int]migrator{
	0: func(s Snapshot) Snapshot {
		if s.ChunkGenerationSchemaVersion == 0 {
			s.ChunkGenerationSchemaVersion = 1
		}
		s.SchemaVersion = 1
		return s
	},
}

// migrate walks the registered chain from s.SchemaVersion up to
// CurrentSchemaVersion, or refuses if s is newer than this build
// understands (spec 6).
func migrate(s Snapshot) (Snapshot, error) {
	if s.SchemaVersion > CurrentSchemaVersion {
		return Snapshot{}, fmt.Errorf("persistence: snapshot schema_version %d newer than supported %d: %w",
			s.SchemaVersion, CurrentSchemaVersion, kernelerr.ErrSchemaIncompatible)
	}
	for s.SchemaVersion < CurrentSchemaVersion {
		m, ok := migrators[s.SchemaVersion]
		if !ok {
			return Snapshot{}, fmt.Errorf("persistence: no migrator registered from schema_version %d: %w",
				s.SchemaVersion, kernelerr.ErrSchemaIncompatible)
		}
		s = m(s)
	}
	return s, nil
}
