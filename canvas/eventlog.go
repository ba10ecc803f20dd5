package canvas

import (
	"log/slog"

	"github.com/hazyhaar/domcanvas/layer"
)

// LogEvents subscribes a debug logger to every bus topic and returns the
// unsubscribe function. Useful when diagnosing reconciler behavior
// without a renderer attached.
func LogEvents(bus *layer.Bus, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return bus.Subscribe(func(ev layer.Event) {
		logger.Debug("canvas: tree event",
			"topic", string(ev.Topic),
			"layer", ev.LayerID,
			"data", ev.Data)
	})
}
