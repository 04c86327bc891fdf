package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersPlaced counts resting orders successfully placed, by side.
var OrdersPlaced = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goblinclob_orders_placed_total",
		Help: "Total number of resting orders placed, by side",
	},
	[]string{"side"},
)

// OrdersCancelled counts resting orders removed via cancel or full reduce,
// by side.
var OrdersCancelled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goblinclob_orders_cancelled_total",
		Help: "Total number of resting orders cancelled, by side",
	},
	[]string{"side"},
)

// FillsExecuted counts individual maker fills produced by MatchTaker, by
// the resting (maker) side.
var FillsExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goblinclob_fills_executed_total",
		Help: "Total number of maker resting orders filled, by resting side",
	},
	[]string{"side"},
)

// SlotWrites counts sstore calls that actually changed a slot versus ones
// the write-skipping commit discipline elided, directly exercising
// invariant I6.
var SlotWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goblinclob_slot_writes_total",
		Help: "Slot writes attempted at commit time, partitioned by whether the value actually changed",
	},
	[]string{"outcome"},
)

// DispatchBatchLatency records wall-clock time to decode and execute one
// calldata batch.
var DispatchBatchLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "goblinclob_dispatch_batch_latency_seconds",
		Help:    "Latency in seconds to decode and execute one calldata batch",
		Buckets: prometheus.DefBuckets,
	},
)

// FailuresByKind counts aborted calls by the cloberrors.Kind that caused
// the abort.
var FailuresByKind = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "goblinclob_failures_total",
		Help: "Total number of failed calls, partitioned by error kind",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersCancelled, FillsExecuted)
	prometheus.MustRegister(SlotWrites, DispatchBatchLatency, FailuresByKind)
}
