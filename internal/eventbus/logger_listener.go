package eventbus

import (
	"context"

	"github.com/kestrel-sim/worldkernel/internal/logging"
)

// StartLoggingListener subscribes to every event on bus and writes a
// one-line summary of each to the log. Non-blocking.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.LogDebug("eventbus: %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return err
	}
	logging.LogInfo("eventbus: logging listener subscribed to all events")
	return nil
}
