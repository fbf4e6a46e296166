package dispatch

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// observe records one dispatch in the default metrics set. The outcome label
// is "ok" or the failure kind.
func observe(operation string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`mysql_mcp_operations_total{operation=%q,outcome=%q}`, operation, outcome)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`mysql_mcp_operation_duration_seconds{operation=%q}`, operation)).UpdateDuration(start)
}

// poolEvent counts pool lifecycle transitions ("open", "close").
func poolEvent(event string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`mysql_mcp_pool_events_total{event=%q}`, event)).Inc()
}
