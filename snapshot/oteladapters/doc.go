// Package oteladapters provides OpenTelemetry implementations of the snapshot observability interfaces.
//
// The state store and the scheduler only depend on the small interfaces in package snapshot. The adapters in
// this package plug them into an OpenTelemetry setup:
//
//	store, err := sqlengine.NewStateStoreFromPGXPool(
//		pool,
//		sqlengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("snapshots")),
//		sqlengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("snapshots"))),
//		sqlengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("snapshots"))),
//	)
package oteladapters
