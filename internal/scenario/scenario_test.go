package scenario

import (
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
	"github.com/kestrel-sim/worldkernel/internal/worldconfig"
)

func testScenario(bootstrapChunks []geo.ChunkCoord) Scenario {
	cfg := worldconfig.Default()
	return Scenario{
		Seed:            42,
		LocationGen:     LocationGenerator{Count: 4, IDPrefix: "loc-", NamePrefix: "Station "},
		Agents:          Agents{Count: 3},
		BootstrapChunks: bootstrapChunks,
		WorldConfig:     cfg,
	}
}

func TestBootstrapGeneratesDeclaredChunks(t *testing.T) {
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}
	res, err := Bootstrap(testScenario([]geo.ChunkCoord{coord}))
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	chunk := res.Store.Chunk(coord)
	if chunk.State != chunkmodel.Generated {
		t.Fatalf("expected chunk %+v to be Generated, got %v", coord, chunk.State)
	}
	neighbour := geo.ChunkCoord{X: 1, Y: 0, Z: 0}
	if res.Store.Chunk(neighbour).State != chunkmodel.Unexplored {
		t.Fatalf("expected neighbour chunk %+v to remain Unexplored", neighbour)
	}

	if len(res.Events) != 1 || res.Events[0].Kind.String() == "" {
		t.Fatalf("expected exactly one bootstrap chunk-generation event, got %+v", res.Events)
	}
}

func TestBootstrapSeedsLocationsAndAgents(t *testing.T) {
	res, err := Bootstrap(testScenario(nil))
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	if len(res.LocationIDs) != 4 {
		t.Fatalf("expected 4 seeded locations, got %d", len(res.LocationIDs))
	}
	if len(res.AgentIDs) != 3 {
		t.Fatalf("expected 3 spawned agents, got %d", len(res.AgentIDs))
	}

	for _, agentID := range res.AgentIDs {
		agent, ok := res.Store.Agent(agentID)
		if !ok {
			t.Fatalf("expected agent %q to be registered", agentID)
		}
		found := false
		for _, locID := range res.LocationIDs {
			if agent.LocationID == locID {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("agent %q assigned to unknown location %q", agentID, agent.LocationID)
		}
	}
}

func TestBootstrapIsDeterministicForFixedSeed(t *testing.T) {
	coord := geo.ChunkCoord{X: 0, Y: 0, Z: 0}
	resA, err := Bootstrap(testScenario([]geo.ChunkCoord{coord}))
	if err != nil {
		t.Fatalf("bootstrap A failed: %v", err)
	}
	resB, err := Bootstrap(testScenario([]geo.ChunkCoord{coord}))
	if err != nil {
		t.Fatalf("bootstrap B failed: %v", err)
	}

	for i, agentID := range resA.AgentIDs {
		agentA, _ := resA.Store.Agent(agentID)
		agentB, _ := resB.Store.Agent(resB.AgentIDs[i])
		if agentA.LocationID != agentB.LocationID {
			t.Fatalf("agent %d location diverged across identical-seed runs: %q vs %q", i, agentA.LocationID, agentB.LocationID)
		}
	}

	for i, locID := range resA.LocationIDs {
		locA, _ := resA.Store.Location(locID)
		locB, _ := resB.Store.Location(resB.LocationIDs[i])
		if locA.Pos != locB.Pos {
			t.Fatalf("location %d position diverged across identical-seed runs: %+v vs %+v", i, locA.Pos, locB.Pos)
		}
	}
}

func TestBootstrapRejectsAgentsWithNoSeededLocations(t *testing.T) {
	s := testScenario(nil)
	s.LocationGen = LocationGenerator{Count: 0}
	if _, err := Bootstrap(s); err == nil {
		t.Fatal("expected bootstrap to reject agent_spawn with zero seeded locations")
	}
}
