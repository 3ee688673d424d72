package internal

import (
	"context"
	"sync"
)

// Telemetry hooks for the search service. The default emitter is a no-op;
// binaries or tests register a real one with RegisterTelemetryEmitter.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter function. Passing nil
// restores the no-op emitter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() telemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitLatency records a latency measure (milliseconds) for a named stage.
// name: "search_latency_ms" with label {"stage": "compile"|"execute"|"count"}
func EmitLatency(ctx context.Context, stage string, ms int64) {
	emitter()(ctx, "search_latency_ms", map[string]string{"stage": stage}, ms)
}

// EmitRowCount records rows returned per statement kind.
// name: "search_row_count" with label {"kind": "page"|"count"}
func EmitRowCount(ctx context.Context, kind string, rows int64) {
	emitter()(ctx, "search_row_count", map[string]string{"kind": kind}, rows)
}

// EmitSearchError counts failed searches by error code.
// name: "search_errors_total" with label {"code": "<SearchError code>"}
func EmitSearchError(ctx context.Context, code string) {
	emitter()(ctx, "search_errors_total", map[string]string{"code": code}, int64(1))
}
