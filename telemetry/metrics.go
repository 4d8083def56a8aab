package telemetry

import (
	"github.com/armon/go-metrics"
)

const (
	watcherMetricsPrefix = "watcher"
	leavesMetricsPrefix  = "leaves"
	signingMetricsPrefix = "signing"
	txQueueMetricsPrefix = "tx_queue"
)

func UpdateWatcherCursor(chain string, block uint64) {
	metrics.SetGauge([]string{watcherMetricsPrefix, "cursor", chain}, float32(block))
}

func UpdateWatcherState(chain string, state int32) {
	metrics.SetGauge([]string{watcherMetricsPrefix, "state", chain}, float32(state))
}

func UpdateLeavesIndexedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{leavesMetricsPrefix, "indexed_counter", chain}, float32(cnt))
}

func UpdateProposalsSignedCounter(backend string, cnt int) {
	metrics.IncrCounter([]string{signingMetricsPrefix, "proposals_signed_counter", backend}, float32(cnt))
}

func UpdateProposalsTimedOutCounter(backend string, cnt int) {
	metrics.IncrCounter([]string{signingMetricsPrefix, "proposals_timed_out_counter", backend}, float32(cnt))
}

func UpdateTxQueueDepth(chain string, depth int) {
	metrics.SetGauge([]string{txQueueMetricsPrefix, "depth", chain}, float32(depth))
}

func UpdateTxSubmittedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{txQueueMetricsPrefix, "submitted_counter", chain}, float32(cnt))
}

func UpdateTxFinalizedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{txQueueMetricsPrefix, "finalized_counter", chain}, float32(cnt))
}

func UpdateTxFailedCounter(chain string, cnt int) {
	metrics.IncrCounter([]string{txQueueMetricsPrefix, "failed_counter", chain}, float32(cnt))
}
