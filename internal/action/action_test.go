package action

import "testing"

func TestKindStringCoversEveryVariant(t *testing.T) {
	for k := Move; k <= DebugSetAgentShutdown; k++ {
		if got := k.String(); got == "Unknown" {
			t.Fatalf("Kind %d missing from String() table", k)
		}
	}
}

func TestWorldEventKindStringCoversEveryVariant(t *testing.T) {
	for k := EvAgentMoved; k <= EvAgentShutdownSet; k++ {
		if got := k.String(); got == "Unknown" {
			t.Fatalf("WorldEventKind %d missing from String() table", k)
		}
	}
}
