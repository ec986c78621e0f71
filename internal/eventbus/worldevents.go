package eventbus

import (
	"strconv"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/action"
)

// EnvelopeFromEvent wraps a journal event for external fan-out. The
// payload is left for the caller to fill with the persistence
// package's gob+zstd encoding — this package has no dependency on
// persistence, so it only shapes the envelope around it.
func EnvelopeFromEvent(id, source string, ev action.Event, payload []byte) *Envelope {
	return &Envelope{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: "world." + ev.Kind.String(),
		Version:   1,
		Priority:  eventPriority(ev.Kind),
		Payload:   payload,
		Metadata: map[string]string{
			"tick": strconv.FormatUint(ev.Tick, 10),
			"seq":  strconv.FormatUint(ev.Seq, 10),
		},
	}
}

// eventPriority ranks fatal/audit-relevant kinds above routine chunk
// and movement chatter, matching the bus's backpressure threshold of 5.
func eventPriority(kind action.WorldEventKind) int {
	switch kind {
	case action.EvActionRejected, action.EvDebugResourceGranted:
		return 7
	case action.EvChunkGenerated, action.EvChunkGenerationSkipped, action.EvFragmentsReplenished:
		return 3
	default:
		return 5
	}
}
