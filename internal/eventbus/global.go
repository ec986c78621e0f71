package eventbus

import "context"

var globalBus EventBus

// Init sets the process-wide bus.
func Init(bus EventBus) { globalBus = bus }

// Publish sends ev on the global bus, a no-op if none was set.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}
