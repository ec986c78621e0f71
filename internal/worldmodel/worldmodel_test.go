package worldmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

func testSpace() geo.Pos {
	return geo.Pos{X: 100_000 * 100_000, Y: 100_000 * 100_000, Z: 10_000 * 100_000}
}

func TestRegisterLocationRejectsCollision(t *testing.T) {
	s := New(testSpace())
	require.NoError(t, s.RegisterLocation(&Location{ID: "loc-1"}))

	err := s.RegisterLocation(&Location{ID: "loc-1"})
	require.Error(t, err)
	r, ok := kernelerr.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.FacilityAlreadyExists, r.Code)
}

func TestAdjustResourceRejectsNegativeBalance(t *testing.T) {
	s := New(testSpace())
	require.NoError(t, s.RegisterAgent(&Agent{ID: "agent-1"}))
	owner := resourcemodel.AgentOwner("agent-1")

	require.NoError(t, s.AdjustResource(owner, resourcemodel.Hardware, 100))
	assert.Error(t, s.AdjustResource(owner, resourcemodel.Hardware, -150))

	bal, _ := s.ResourceBalance(owner, resourcemodel.Hardware)
	assert.EqualValues(t, 100, bal, "balance must not mutate on a rejected debit")

	assert.NoError(t, s.AdjustResource(owner, resourcemodel.Hardware, -100), "exact debit should succeed")
}

func TestApplyFragmentDepletionAtomic(t *testing.T) {
	s := New(testSpace())
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}

	budget := chunkmodel.NewResourceBudget()
	budget.AddTotal("Fe", 1000)
	frag := &chunkmodel.Fragment{ID: "frag-0", Budget: budget}

	chunkBudget := chunkmodel.NewResourceBudget()
	chunkBudget.AddTotal("Fe", 1000)

	s.StoreGeneratedChunk(coord, 1, []*chunkmodel.Fragment{frag}, chunkBudget)

	require.NoError(t, s.ApplyFragmentDepletion(coord, "frag-0", "Fe", 400))

	chunk := s.Chunk(coord)
	f, ok := chunk.FragmentByID("frag-0")
	require.True(t, ok)
	assert.EqualValues(t, 600, f.Budget.RemainingByElement["Fe"])
	assert.EqualValues(t, 600, chunk.Budget.RemainingByElement["Fe"])

	assert.Error(t, s.ApplyFragmentDepletion(coord, "frag-0", "Fe", 700), "over-deplete must be rejected")
}

func TestSpawnVisualEntityRejectsDanglingAnchor(t *testing.T) {
	s := New(testSpace())
	err := s.SpawnVisualEntity(&ModuleVisualEntity{
		EntityID: "vis-1",
		Anchor:   VisualAnchor{Kind: AnchorAgent, ID: "missing-agent"},
	})
	assert.Error(t, err, "expected validation error for dangling anchor")
}

func TestSpawnVisualEntityRejectsDuplicateID(t *testing.T) {
	s := New(testSpace())
	e := &ModuleVisualEntity{EntityID: "vis-1", Anchor: VisualAnchor{Kind: AnchorAbsolute, Pos: geo.Pos{}}}
	require.NoError(t, s.SpawnVisualEntity(e))
	assert.Error(t, s.SpawnVisualEntity(e), "expected duplicate entity_id rejection")
}

func TestChunkLazyCreateIsIdempotent(t *testing.T) {
	s := New(testSpace())
	coord := geo.ChunkCoord{X: 2, Y: 2, Z: 0}
	a := s.Chunk(coord)
	b := s.Chunk(coord)
	assert.Same(t, a, b, "repeated Chunk() calls must return the same instance")
	assert.Equal(t, chunkmodel.Unexplored, a.State, "new chunk should start Unexplored")
}

func TestBoundaryReservationsConsumedOnce(t *testing.T) {
	s := New(testSpace())
	coord := geo.ChunkCoord{X: 1, Y: 0, Z: 0}
	r := chunkmodel.BoundaryReservation{SourceChunk: geo.ChunkCoord{X: 0}, FragmentID: "f0"}
	s.AddBoundaryReservation(coord, r)

	got := s.ConsumeReservations(coord)
	require.Len(t, got, 1)

	again := s.ConsumeReservations(coord)
	assert.Empty(t, again, "reservations must be cleared after consumption")
}

func TestDueMaterialTransitsPartitionsByTick(t *testing.T) {
	s := New(testSpace())
	s.EnqueueMaterialTransit(&PendingMaterialTransit{ID: 1, ReadyAtTick: 5})
	s.EnqueueMaterialTransit(&PendingMaterialTransit{ID: 2, ReadyAtTick: 10})

	due := s.DueMaterialTransits(5)
	require.Len(t, due, 1)
	assert.EqualValues(t, 1, due[0].ID)
	assert.Equal(t, 1, s.PendingTransitCount(), "expected 1 transit still pending")
}
